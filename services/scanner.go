package services

import (
	"context"
	"time"

	"raildrops/metrics"
	"raildrops/models"

	"github.com/google/logger"
)

// FindEligibleGiveaways returns the ids of giveaways ready for winner selection:
// ended before now, active, at least one entry, no winner yet.
// Counting happens in one aggregate query; entries are never loaded.
func (s *WinnerService) FindEligibleGiveaways(ctx context.Context, now time.Time) (ids []string, err error) {
	const op = "find_eligible_giveaways"
	mc := metrics.FromContext(ctx)
	mc.Start(op)
	defer func() { mc.End(op, err) }()

	ids = []string{}
	err = s.DB.WithContext(ctx).Model(&models.Giveaway{}).
		Joins("LEFT JOIN entries ON entries.giveaway_id = giveaways.id").
		Joins("LEFT JOIN winners ON winners.giveaway_id = giveaways.id").
		Where("giveaways.end_date < ? AND giveaways.is_active = ?", now.UTC(), true).
		Group("giveaways.id").
		Having("COUNT(entries.id) > 0 AND COUNT(winners.id) = 0").
		Pluck("giveaways.id", &ids).Error
	if err != nil {
		return nil, persistenceErr("find eligible giveaways", err)
	}

	mc.Increment(op, "eligible", int64(len(ids)))
	logger.Infof("[SELECT] Found %d eligible giveaways for winner selection", len(ids))
	return ids, nil
}
