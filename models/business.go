// models/business.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the profile a business account runs giveaways under.
type Business struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID     string    `gorm:"uniqueIndex;not null" json:"owner_id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"index" json:"slug"`
	Description string    `json:"description"`
	LogoURL     string    `json:"logo_url,omitempty"`
	Website     string    `json:"website,omitempty"`
	PostalCode  string    `gorm:"size:10;index" json:"postal_code"`
	City        string    `gorm:"size:64" json:"city"`
	CityKey     string    `gorm:"size:64;index" json:"-"` // lenient search key, see services.CitySearchKey
	Address     string    `json:"address,omitempty"`
	Phone       string    `gorm:"size:32" json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
