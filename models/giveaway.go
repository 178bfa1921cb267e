// models/giveaway.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MinSignupOptions = 2
	MaxSignupOptions = 4
)

type Giveaway struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	BusinessID  string    `json:"business_id" gorm:"type:uuid;index;not null"`
	Business    *Business `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
	Title       string    `json:"title" gorm:"not null"`
	Slug        string    `json:"slug" gorm:"index"`
	Description string    `json:"description"`

	// 🖼️ Media (R2 public URL)
	ImageURL string `json:"image_url,omitempty"`

	PrizeValue decimal.NullDecimal `json:"prize_value" gorm:"type:numeric(10,2)"`

	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null;index"`
	IsActive  bool      `json:"is_active" gorm:"not null;index"`

	// Optional qualifying question, answered with one of 2-4 options
	SignupQuestion string                      `json:"signup_question,omitempty"`
	SignupOptions  datatypes.JSONSlice[string] `json:"signup_options,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Entries []Entry `json:"-" gorm:"foreignKey:GiveawayID"`
	Winner  *Winner `json:"winner,omitempty" gorm:"foreignKey:GiveawayID"`
}

func (g *Giveaway) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps all stored instants in UTC so range comparisons are consistent.
func (g *Giveaway) BeforeSave(tx *gorm.DB) error {
	g.StartDate = g.StartDate.UTC()
	g.EndDate = g.EndDate.UTC()
	return nil
}

// IsExpired reports whether the giveaway ended strictly before now.
func (g *Giveaway) IsExpired(now time.Time) bool {
	return g.EndDate.Before(now)
}

// IsRunning reports whether now falls inside [start, end].
func (g *Giveaway) IsRunning(now time.Time) bool {
	return !now.Before(g.StartDate) && !now.After(g.EndDate)
}

// HasOption reports whether answer is one of the configured signup options.
// Giveaways without options accept any answer.
func (g *Giveaway) HasOption(answer string) bool {
	if len(g.SignupOptions) == 0 {
		return true
	}
	for _, opt := range g.SignupOptions {
		if opt == answer {
			return true
		}
	}
	return false
}

// Entry is one user's registration for one giveaway.
// (giveaway_id, user_id) is unique; the index is the source of truth for "one entry per user".
type Entry struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	GiveawayID       string    `json:"giveaway_id" gorm:"type:uuid;not null;uniqueIndex:idx_entries_giveaway_user"`
	UserID           string    `json:"user_id" gorm:"not null;uniqueIndex:idx_entries_giveaway_user"`
	Answer           string    `json:"answer" gorm:"size:255"`
	UserLocationCity string    `json:"user_location_city" gorm:"size:100;not null"` // raw claimed city
	EnteredAt        time.Time `json:"entered_at" gorm:"autoCreateTime"`
}

func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Winner is the single selected entrant of a giveaway. Never replaced once created.
type Winner struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid"`
	GiveawayID       string     `json:"giveaway_id" gorm:"type:uuid;not null;uniqueIndex"`
	UserID           string     `json:"user_id" gorm:"not null;index"`
	EntryID          string     `json:"entry_id" gorm:"type:uuid"`
	SelectedAt       time.Time  `json:"selected_at" gorm:"not null"`
	NotificationSent bool       `json:"notification_sent" gorm:"not null;index"`
	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
}

func (w *Winner) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
