package services

import (
	"context"
	"fmt"

	"raildrops/models"

	"github.com/google/logger"
)

// ValidateEntry checks the submitted fields of an entry and returns the
// normalized claimed city. The first failing check wins:
// answer, location, city format, then city match against the business.
// It has no side effects; persistence is the caller's job. g.Business must be
// preloaded, otherwise ErrBusinessNotLoaded is returned.
func ValidateEntry(acct models.Account, g *models.Giveaway, claimedCity, answer string) (string, error) {
	if answer == "" {
		return "", ErrMissingAnswer
	}
	if claimedCity == "" {
		return "", ErrMissingLocation
	}

	normalized := NormalizeCity(claimedCity)
	if normalized == "" {
		return "", &InvalidCityError{ClaimedCity: claimedCity}
	}

	if g.Business == nil {
		return "", fmt.Errorf("giveaway %s: %w", g.ID, ErrBusinessNotLoaded)
	}
	requiredCity := g.Business.City
	if normalized != NormalizeCity(requiredCity) {
		logger.Infof("[ENTRY] City mismatch for user %s on giveaway %s: %q (%s) vs %q",
			acct.UserID, g.ID, claimedCity, normalized, requiredCity)
		return "", &CityMismatchError{RequiredCity: requiredCity, ClaimedCity: claimedCity}
	}
	return normalized, nil
}

// CanEnterGiveaway is the coarse gate checked before an entry form is offered:
// an authenticated member, an active giveaway, and no previous entry.
func (s *EntryService) CanEnterGiveaway(ctx context.Context, acct models.Account, g *models.Giveaway) (bool, error) {
	if !acct.IsAuthenticated() || !acct.IsMember() {
		return false, nil
	}
	if !g.IsActive {
		return false, nil
	}
	entered, err := s.HasEntered(ctx, g.ID, acct.UserID)
	if err != nil {
		return false, err
	}
	return !entered, nil
}
