package models

import (
	"time"
)

// AccountKind separates plain members from business accounts.
// It is resolved once when the gateway identity is read and carried from there on.
type AccountKind string

const (
	AccountMember   AccountKind = "member"
	AccountBusiness AccountKind = "business"
)

// ParseAccountKind maps a raw header/sync value onto a known kind.
// Anything unrecognised is treated as a member account.
func ParseAccountKind(raw string) AccountKind {
	switch AccountKind(raw) {
	case AccountBusiness:
		return AccountBusiness
	default:
		return AccountMember
	}
}

// Account is the request-scoped identity forwarded by the gateway.
type Account struct {
	UserID string      `json:"user_id"`
	Kind   AccountKind `json:"kind"`
	Roles  []string    `json:"roles,omitempty"`
}

func (a Account) IsAuthenticated() bool { return a.UserID != "" }

func (a Account) IsMember() bool { return a.IsAuthenticated() && a.Kind == AccountMember }

func (a Account) IsBusiness() bool { return a.IsAuthenticated() && a.Kind == AccountBusiness }

func (a Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User is a local snapshot of an account owned by the accounts service.
// Populated via the account sync worker; only what giveaways need is kept.
type User struct {
	ID        string      `gorm:"primaryKey" json:"id"` // external account id
	Email     string      `gorm:"index" json:"email,omitempty"`
	City      string      `gorm:"size:100" json:"city,omitempty"`
	Kind      AccountKind `gorm:"size:16;not null" json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
