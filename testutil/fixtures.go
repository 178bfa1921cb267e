package testutil

import (
	"fmt"
	"testing"
	"time"

	"raildrops/models"

	"gorm.io/gorm"
)

// Business inserts a business located in city.
func Business(t testing.TB, db *gorm.DB, name, city string) *models.Business {
	t.Helper()
	b := &models.Business{
		OwnerID: "owner-" + name,
		Name:    name,
		City:    city,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create business: %v", err)
	}
	return b
}

// Giveaway inserts an active giveaway for b ending at end.
func Giveaway(t testing.TB, db *gorm.DB, b *models.Business, title string, end time.Time) *models.Giveaway {
	t.Helper()
	g := &models.Giveaway{
		BusinessID:     b.ID,
		Title:          title,
		Description:    title + " description",
		StartDate:      end.Add(-7 * 24 * time.Hour),
		EndDate:        end,
		IsActive:       true,
		SignupQuestion: "Would you come back?",
		SignupOptions:  []string{"Yes", "No"},
	}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("create giveaway: %v", err)
	}
	g.Business = b
	return g
}

// Entries adds n entries from distinct users user-1..user-n and returns them.
func Entries(t testing.TB, db *gorm.DB, g *models.Giveaway, n int) []models.Entry {
	t.Helper()
	out := make([]models.Entry, 0, n)
	for i := 1; i <= n; i++ {
		e := models.Entry{
			GiveawayID:       g.ID,
			UserID:           fmt.Sprintf("user-%d", i),
			Answer:           "Yes",
			UserLocationCity: "Oslo",
		}
		if err := db.Create(&e).Error; err != nil {
			t.Fatalf("create entry: %v", err)
		}
		out = append(out, e)
	}
	return out
}

// Member inserts a mirrored member account living in city.
func Member(t testing.TB, db *gorm.DB, id, city string) models.Account {
	t.Helper()
	u := models.User{ID: id, Email: id + "@example.com", City: city, Kind: models.AccountMember}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return models.Account{UserID: id, Kind: models.AccountMember}
}
