package services

import (
	"context"
	"errors"
	"strings"

	"raildrops/models"

	"github.com/google/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EntryService struct {
	DB *gorm.DB
}

func NewEntryService(db *gorm.DB) *EntryService {
	return &EntryService{DB: db}
}

// HasEntered reports whether userID already has an entry for giveawayID.
func (s *EntryService) HasEntered(ctx context.Context, giveawayID, userID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("giveaway_id = ? AND user_id = ?", giveawayID, userID).
		Count(&count).Error; err != nil {
		return false, persistenceErr("count user entries", err)
	}
	return count > 0, nil
}

// CountEntries returns the number of entries of a giveaway.
func (s *EntryService) CountEntries(ctx context.Context, giveawayID string) (int64, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("giveaway_id = ?", giveawayID).
		Count(&count).Error; err != nil {
		return 0, persistenceErr("count entries", err)
	}
	return count, nil
}

// SubmitEntry validates and stores a member's entry.
// The city registered on the member's profile takes precedence over the
// submitted one; the raw claimed string is what gets stored.
func (s *EntryService) SubmitEntry(ctx context.Context, acct models.Account, giveawayID, claimedCity, answer string) (*models.Entry, error) {
	if !acct.IsMember() {
		return nil, ErrEntryNotAllowed
	}

	g, err := loadGiveaway(ctx, s.DB, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive {
		return nil, ErrEntryNotAllowed
	}

	entered, err := s.HasEntered(ctx, g.ID, acct.UserID)
	if err != nil {
		return nil, err
	}
	if entered {
		return nil, ErrDuplicateEntry
	}

	if city := s.profileCity(ctx, acct.UserID); city != "" {
		claimedCity = city
	}
	claimedCity = strings.TrimSpace(claimedCity)
	answer = strings.TrimSpace(answer)

	if _, err := ValidateEntry(acct, g, claimedCity, answer); err != nil {
		logger.Warningf("[ENTRY] Validation failed for user %s on giveaway %s: %v", acct.UserID, g.ID, err)
		return nil, err
	}
	if !g.HasOption(answer) {
		return nil, ErrInvalidAnswer
	}

	entry := &models.Entry{
		GiveawayID:       g.ID,
		UserID:           acct.UserID,
		Answer:           answer,
		UserLocationCity: claimedCity,
	}
	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEntry
		}
		return nil, persistenceErr("create entry", err)
	}

	logger.Infof("[ENTRY] ✅ User %s entered giveaway %s from %s", acct.UserID, g.ID, claimedCity)
	return entry, nil
}

func (s *EntryService) profileCity(ctx context.Context, userID string) string {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&u).Error; err != nil {
		logger.Warningf("[ENTRY] Could not load profile for user %s: %v", userID, err)
		return ""
	}
	return u.City
}

// loadGiveaway fetches a giveaway with its business, mapping a missing row
// or a malformed id onto ErrGiveawayNotFound.
func loadGiveaway(ctx context.Context, db *gorm.DB, id string) (*models.Giveaway, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrGiveawayNotFound
	}
	var g models.Giveaway
	if err := db.WithContext(ctx).Preload("Business").First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiveawayNotFound
		}
		return nil, persistenceErr("load giveaway", err)
	}
	return &g, nil
}
