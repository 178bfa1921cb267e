package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"raildrops/models"

	"github.com/google/logger"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultPageSize = 12

var maxPrizeValue = decimal.RequireFromString("99999999.99")

type GiveawayService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewGiveawayService(db *gorm.DB) *GiveawayService {
	return &GiveawayService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// GiveawayInput is what a business submits when creating or editing a giveaway.
type GiveawayInput struct {
	Title          string
	Description    string
	ImageURL       string
	PrizeValue     *decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	IsActive       *bool
	SignupQuestion string
	SignupOptions  []string
}

// ListFilter narrows the public giveaway list.
type ListFilter struct {
	City       string
	PostalCode string
	AllDates   bool // include giveaways outside their start/end window
	Page       int
	PageSize   int
}

// ValidateGiveaway enforces the giveaway invariants and returns the cleaned options.
func ValidateGiveaway(in GiveawayInput) ([]string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, &GiveawayFieldError{Field: "title", Msg: "title is required"}
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, &GiveawayFieldError{Field: "end_date", Msg: "start_date and end_date are required"}
	}
	if !in.StartDate.Before(in.EndDate) {
		return nil, &GiveawayFieldError{Field: "end_date", Msg: "end_date must be after start_date"}
	}
	if in.PrizeValue != nil && (in.PrizeValue.IsNegative() || in.PrizeValue.GreaterThan(maxPrizeValue)) {
		return nil, &GiveawayFieldError{Field: "prize_value", Msg: "prize_value must be between 0 and 99999999.99"}
	}

	options := make([]string, 0, len(in.SignupOptions))
	for _, opt := range in.SignupOptions {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) > models.MaxSignupOptions {
		return nil, &GiveawayFieldError{Field: "signup_options", Msg: "maximum 4 answer options are allowed"}
	}
	if strings.TrimSpace(in.SignupQuestion) != "" && len(options) < models.MinSignupOptions {
		return nil, &GiveawayFieldError{Field: "signup_options", Msg: "you must provide at least 2 answer options"}
	}
	return options, nil
}

// CreateGiveaway creates a giveaway under the caller's business profile.
func (s *GiveawayService) CreateGiveaway(ctx context.Context, acct models.Account, in GiveawayInput) (*models.Giveaway, error) {
	business, err := s.ownedBusiness(ctx, acct)
	if err != nil {
		return nil, err
	}
	options, err := ValidateGiveaway(in)
	if err != nil {
		return nil, err
	}

	g := &models.Giveaway{
		BusinessID:     business.ID,
		IsActive:       true,
		SignupOptions:  options,
		SignupQuestion: strings.TrimSpace(in.SignupQuestion),
	}
	applyGiveawayInput(g, in)
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}

	if err := s.DB.WithContext(ctx).Create(g).Error; err != nil {
		return nil, persistenceErr("create giveaway", err)
	}
	g.Business = business
	logger.Infof("[GIVEAWAY] ✅ Giveaway %q created for business %s", g.Title, business.Name)
	return g, nil
}

// UpdateGiveaway lets the owning business edit a giveaway.
func (s *GiveawayService) UpdateGiveaway(ctx context.Context, acct models.Account, id string, in GiveawayInput) (*models.Giveaway, error) {
	g, err := loadGiveaway(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if !acct.IsBusiness() || g.Business == nil || g.Business.OwnerID != acct.UserID {
		return nil, ErrNotBusinessOwner
	}
	options, err := ValidateGiveaway(in)
	if err != nil {
		return nil, err
	}

	imageURL := g.ImageURL
	applyGiveawayInput(g, in)
	if in.ImageURL == "" {
		g.ImageURL = imageURL
	}
	g.SignupQuestion = strings.TrimSpace(in.SignupQuestion)
	g.SignupOptions = options
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}

	if err := s.DB.WithContext(ctx).Omit("Business", "Entries", "Winner").Save(g).Error; err != nil {
		return nil, persistenceErr("update giveaway", err)
	}
	return g, nil
}

func applyGiveawayInput(g *models.Giveaway, in GiveawayInput) {
	g.Title = strings.TrimSpace(in.Title)
	g.Slug = slug.Make(g.Title)
	g.Description = in.Description
	g.ImageURL = in.ImageURL
	g.StartDate = in.StartDate
	g.EndDate = in.EndDate
	g.PrizeValue = decimal.NullDecimal{}
	if in.PrizeValue != nil {
		g.PrizeValue = decimal.NewNullDecimal(in.PrizeValue.Round(2))
	}
}

// GetGiveaway returns a giveaway with its business.
func (s *GiveawayService) GetGiveaway(ctx context.Context, id string) (*models.Giveaway, error) {
	return loadGiveaway(ctx, s.DB, id)
}

// ListActive returns active giveaways, by default only those currently running,
// optionally narrowed to a city or postal code, soonest ending first.
func (s *GiveawayService) ListActive(ctx context.Context, f ListFilter) ([]models.Giveaway, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}

	q := s.DB.WithContext(ctx).Model(&models.Giveaway{}).
		Preload("Business").
		Joins("JOIN businesses ON businesses.id = giveaways.business_id").
		Where("giveaways.is_active = ?", true)
	if !f.AllDates {
		now := s.Now()
		q = q.Where("giveaways.start_date <= ? AND giveaways.end_date >= ?", now, now)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		q = q.Where("businesses.city_key = ?", CitySearchKey(city))
	}
	if pc := strings.TrimSpace(f.PostalCode); pc != "" {
		q = q.Where("businesses.postal_code = ?", pc)
	}

	var out []models.Giveaway
	if err := q.Order("giveaways.end_date ASC").
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize).
		Find(&out).Error; err != nil {
		return nil, persistenceErr("list giveaways", err)
	}
	return out, nil
}

// ListForBusiness returns every giveaway of the caller's business, newest first.
func (s *GiveawayService) ListForBusiness(ctx context.Context, acct models.Account) ([]models.Giveaway, error) {
	business, err := s.ownedBusiness(ctx, acct)
	if err != nil {
		return nil, err
	}
	var out []models.Giveaway
	if err := s.DB.WithContext(ctx).
		Where("business_id = ?", business.ID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, persistenceErr("list business giveaways", err)
	}
	return out, nil
}

func (s *GiveawayService) ownedBusiness(ctx context.Context, acct models.Account) (*models.Business, error) {
	if !acct.IsBusiness() {
		return nil, ErrNotBusinessOwner
	}
	var b models.Business
	if err := s.DB.WithContext(ctx).Where("owner_id = ?", acct.UserID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, persistenceErr("load business", err)
	}
	return &b, nil
}
