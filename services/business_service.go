package services

import (
	"context"
	"errors"
	"strings"

	"raildrops/models"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type BusinessService struct {
	DB *gorm.DB
}

func NewBusinessService(db *gorm.DB) *BusinessService {
	return &BusinessService{DB: db}
}

type BusinessInput struct {
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
	Website     string `json:"website" form:"website"`
	PostalCode  string `json:"postal_code" form:"postal_code"`
	City        string `json:"city" form:"city"`
	Address     string `json:"address" form:"address"`
	Phone       string `json:"phone" form:"phone"`
	LogoURL     string `json:"-"`
}

// CreateBusiness registers the profile of a business account. One per owner.
func (s *BusinessService) CreateBusiness(ctx context.Context, acct models.Account, in BusinessInput) (*models.Business, error) {
	if !acct.IsBusiness() {
		return nil, ErrNotBusinessOwner
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &GiveawayFieldError{Field: "name", Msg: "business name cannot be empty"}
	}
	if in.PostalCode != "" && strings.Trim(in.PostalCode, "0123456789") != "" {
		return nil, &GiveawayFieldError{Field: "postal_code", Msg: "postal code can only contain digits"}
	}

	b := &models.Business{
		OwnerID:     acct.UserID,
		Name:        name,
		Slug:        slug.Make(name),
		Description: in.Description,
		LogoURL:     in.LogoURL,
		Website:     in.Website,
		PostalCode:  in.PostalCode,
		City:        strings.TrimSpace(in.City),
		CityKey:     CitySearchKey(in.City),
		Address:     in.Address,
		Phone:       in.Phone,
	}
	if err := s.DB.WithContext(ctx).Create(b).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrBusinessExists
		}
		return nil, persistenceErr("create business", err)
	}
	logger.Infof("[BUSINESS] ✅ Business %s (%s) registered by %s", b.Name, b.City, acct.UserID)
	return b, nil
}

// GetByOwner returns the business profile of an account.
func (s *BusinessService) GetByOwner(ctx context.Context, ownerID string) (*models.Business, error) {
	var b models.Business
	if err := s.DB.WithContext(ctx).Where("owner_id = ?", ownerID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, persistenceErr("load business", err)
	}
	return &b, nil
}

// BusinessProfile is the public page of a business.
type BusinessProfile struct {
	Business  *models.Business  `json:"business"`
	Giveaways []models.Giveaway `json:"giveaways"`
}

// GetPublic returns a business with its active giveaways, soonest ending first.
func (s *BusinessService) GetPublic(ctx context.Context, id string) (*BusinessProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBusinessNotFound
	}
	var b models.Business
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, persistenceErr("load business", err)
	}

	giveaways := []models.Giveaway{}
	if err := s.DB.WithContext(ctx).
		Where("business_id = ? AND is_active = ?", b.ID, true).
		Order("end_date ASC").
		Find(&giveaways).Error; err != nil {
		return nil, persistenceErr("list business giveaways", err)
	}
	return &BusinessProfile{Business: &b, Giveaways: giveaways}, nil
}

// CanCreateGiveaway reports whether acct is the business account that owns b.
func CanCreateGiveaway(acct models.Account, b *models.Business) bool {
	return acct.IsBusiness() && acct.UserID != "" && acct.UserID == b.OwnerID
}
