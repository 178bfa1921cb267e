package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Entry validation. These are surfaced to the entry form as field messages.
var (
	ErrMissingAnswer     = errors.New("you must select an answer")
	ErrMissingLocation   = errors.New("your location must be registered: allow location sharing or enter your city manually")
	ErrInvalidCityFormat = errors.New("invalid city format")
	ErrCityMismatch      = errors.New("city mismatch")
	ErrInvalidAnswer     = errors.New("the selected answer is not one of the options")
	ErrDuplicateEntry    = errors.New("you have already entered this giveaway")
	ErrEntryNotAllowed   = errors.New("you are not allowed to enter this giveaway")
)

// Giveaway management.
var (
	ErrInvalidGiveaway   = errors.New("invalid giveaway")
	ErrNotBusinessOwner  = errors.New("only the owning business can manage this giveaway")
	ErrBusinessNotFound  = errors.New("business profile not found")
	ErrBusinessExists    = errors.New("business profile already exists")
	ErrBusinessNotLoaded = errors.New("giveaway business not loaded")
)

// Winner selection. Expected outcomes, not faults.
var (
	ErrGiveawayNotFound = errors.New("giveaway not found")
	ErrNotYetExpired    = errors.New("giveaway has not ended yet")
	ErrNoEntries        = errors.New("giveaway has no entries")
)

// InvalidCityError reports a claimed city that normalizes to nothing.
type InvalidCityError struct {
	ClaimedCity string
}

func (e *InvalidCityError) Error() string {
	return fmt.Sprintf("invalid city format: %s, please update your profile with a valid city", e.ClaimedCity)
}

func (e *InvalidCityError) Is(target error) bool { return target == ErrInvalidCityFormat }

// CityMismatchError carries both cities so the form can explain the rejection.
type CityMismatchError struct {
	RequiredCity string
	ClaimedCity  string
}

func (e *CityMismatchError) Error() string {
	return fmt.Sprintf("you must be in %s to participate in this giveaway, your current position is registered as %s",
		e.RequiredCity, e.ClaimedCity)
}

func (e *CityMismatchError) Is(target error) bool { return target == ErrCityMismatch }

// GiveawayFieldError is a single rejected field of a giveaway form.
type GiveawayFieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e *GiveawayFieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

func (e *GiveawayFieldError) Is(target error) bool { return target == ErrInvalidGiveaway }

// PersistenceError wraps a storage failure. Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is (or wraps) a storage failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// TaskError is a chunk that kept failing after every retry.
type TaskError struct {
	GiveawayIDs []string
	Attempts    int
	Err         error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("chunk of %d giveaways failed after %d attempts: %v", len(e.GiveawayIDs), e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// isUniqueViolation recognises duplicate-key failures from gorm's translator,
// pgx, and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
