package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"raildrops/metrics"
	"raildrops/models"

	"github.com/google/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WinnerService struct {
	DB *gorm.DB

	// Now and Intn are replaceable in tests.
	Now  func() time.Time
	Intn func(n int64) int64
}

func NewWinnerService(db *gorm.DB) *WinnerService {
	return &WinnerService{
		DB:   db,
		Now:  func() time.Time { return time.Now().UTC() },
		Intn: rand.Int64N,
	}
}

// selection is the detailed outcome of one SelectWinner call.
type selection struct {
	winner  *models.Winner
	title   string
	created bool
}

var errWinnerRace = errors.New("winner created concurrently")

// SelectWinner picks one uniformly random entry of an expired giveaway and records
// it as the winner. Repeated or concurrent calls for the same giveaway all return
// the same Winner; exactly one row is ever created.
func (s *WinnerService) SelectWinner(ctx context.Context, giveawayID string) (*models.Winner, error) {
	sel, err := s.selectWinner(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	return sel.winner, nil
}

func (s *WinnerService) selectWinner(ctx context.Context, giveawayID string) (sel selection, err error) {
	const op = "select_random_winner"
	mc := metrics.FromContext(ctx)
	mc.Start(op)
	defer func() { mc.End(op, err) }()

	if _, perr := uuid.Parse(giveawayID); perr != nil {
		return sel, ErrGiveawayNotFound
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock serializes concurrent selections for the same giveaway.
		var g models.Giveaway
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", giveawayID).
			First(&g).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGiveawayNotFound
			}
			return persistenceErr("lock giveaway", err)
		}
		sel.title = g.Title

		if !g.IsExpired(s.Now()) {
			return ErrNotYetExpired
		}

		var existing models.Winner
		res := tx.Where("giveaway_id = ?", g.ID).Limit(1).Find(&existing)
		if res.Error != nil {
			return persistenceErr("load winner", res.Error)
		}
		if res.RowsAffected > 0 {
			sel.winner = &existing
			return nil
		}

		var total int64
		if err := tx.Model(&models.Entry{}).Where("giveaway_id = ?", g.ID).Count(&total).Error; err != nil {
			return persistenceErr("count entries", err)
		}
		mc.Increment(op, "total_entries", total)
		if total == 0 {
			return ErrNoEntries
		}

		// Point fetch of the entry at a random offset; the entry set is never materialized.
		idx := s.Intn(total)
		var entry models.Entry
		if err := tx.Where("giveaway_id = ?", g.ID).
			Order("id ASC").
			Offset(int(idx)).
			Limit(1).
			Take(&entry).Error; err != nil {
			return persistenceErr("fetch winning entry", err)
		}

		winner := &models.Winner{
			GiveawayID:       g.ID,
			UserID:           entry.UserID,
			EntryID:          entry.ID,
			SelectedAt:       s.Now(),
			NotificationSent: false,
		}
		if err := tx.Create(winner).Error; err != nil {
			if isUniqueViolation(err) {
				return errWinnerRace
			}
			return persistenceErr("create winner", err)
		}
		sel.winner = winner
		sel.created = true
		return nil
	})

	if err != nil && !IsPersistence(err) && !isSelectionOutcome(err) {
		err = persistenceErr("select winner transaction", err)
	}
	if errors.Is(err, errWinnerRace) {
		// Another selector committed first; the transaction rolled back, report theirs.
		w, lerr := s.GetWinner(ctx, giveawayID)
		if lerr != nil {
			return sel, lerr
		}
		return selection{winner: w, title: sel.title}, nil
	}
	if err != nil {
		logSelectionError(giveawayID, err)
		return sel, err
	}

	if sel.created {
		logger.Infof("[SELECT] 🎉 Selected winner for %s: user %s", sel.title, sel.winner.UserID)
	} else {
		logger.Infof("[SELECT] Giveaway %s already has a winner: user %s", sel.title, sel.winner.UserID)
	}
	return sel, nil
}

func isSelectionOutcome(err error) bool {
	return errors.Is(err, ErrGiveawayNotFound) || errors.Is(err, ErrNotYetExpired) ||
		errors.Is(err, ErrNoEntries) || errors.Is(err, errWinnerRace)
}

func logSelectionError(giveawayID string, err error) {
	switch {
	case errors.Is(err, ErrNotYetExpired), errors.Is(err, ErrNoEntries):
		logger.Warningf("[SELECT] Giveaway %s skipped: %v", giveawayID, err)
	case errors.Is(err, ErrGiveawayNotFound):
		logger.Errorf("[SELECT] Giveaway with ID %s does not exist", giveawayID)
	default:
		logger.Errorf("[SELECT] ❌ Error selecting winner for giveaway %s: %v", giveawayID, err)
	}
}

// GetWinner returns the winner of a giveaway.
// gorm.ErrRecordNotFound is returned as is while no winner has been selected.
func (s *WinnerService) GetWinner(ctx context.Context, giveawayID string) (*models.Winner, error) {
	if _, err := uuid.Parse(giveawayID); err != nil {
		return nil, ErrGiveawayNotFound
	}
	var w models.Winner
	if err := s.DB.WithContext(ctx).Where("giveaway_id = ?", giveawayID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, persistenceErr("load winner", err)
	}
	return &w, nil
}

// NotifyPendingWinners marks every winner that has not been notified yet.
// Delivery itself (e-mail, push) happens elsewhere; this only records the hand-off.
func (s *WinnerService) NotifyPendingWinners(ctx context.Context) (int, error) {
	var pending []models.Winner
	if err := s.DB.WithContext(ctx).
		Where("notification_sent = ?", false).
		Order("selected_at ASC").
		Find(&pending).Error; err != nil {
		return 0, persistenceErr("load pending winners", err)
	}
	if len(pending) == 0 {
		logger.Info("[NOTIFY] No pending winner notifications found.")
		return 0, nil
	}

	notified := 0
	for _, w := range pending {
		if err := s.MarkNotificationSent(ctx, w.ID); err != nil {
			logger.Errorf("[NOTIFY] Error notifying winner %s: %v", w.ID, err)
			continue
		}
		logger.Infof("[NOTIFY] Notified winner %s for giveaway %s", w.UserID, w.GiveawayID)
		notified++
	}
	return notified, nil
}

// MarkNotificationSent flips notification_sent; the only mutation a Winner allows.
func (s *WinnerService) MarkNotificationSent(ctx context.Context, winnerID string) error {
	now := s.Now()
	res := s.DB.WithContext(ctx).Model(&models.Winner{}).
		Where("id = ? AND notification_sent = ?", winnerID, false).
		Updates(map[string]interface{}{"notification_sent": true, "notified_at": now})
	if res.Error != nil {
		return persistenceErr("mark winner notified", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("winner %s: %w", winnerID, gorm.ErrRecordNotFound)
	}
	return nil
}
