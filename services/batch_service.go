package services

import (
	"context"
	"errors"
	"fmt"

	"raildrops/metrics"

	"github.com/google/logger"
)

// MaxBatchMessages bounds the per-giveaway messages a summary keeps.
const MaxBatchMessages = 100

// BatchSummary is the outcome of running the selector over a list of giveaways.
type BatchSummary struct {
	Processed       int               `json:"processed"`
	Winners         int               `json:"winners"`
	Errors          int               `json:"errors"`
	Messages        []string          `json:"messages"`
	MessagesOmitted int               `json:"messages_omitted,omitempty"`
	Metrics         metrics.Operation `json:"performance_metrics"`
}

func (b *BatchSummary) addMessage(msg string) {
	if len(b.Messages) >= MaxBatchMessages {
		b.MessagesOmitted++
		return
	}
	b.Messages = append(b.Messages, msg)
}

// ProcessBatch runs the selector once per giveaway and tallies the outcome.
// Idempotent no-ops count as winners. It never stops early: every failure is
// counted and described, and the next giveaway is processed.
func (s *WinnerService) ProcessBatch(ctx context.Context, giveawayIDs []string) BatchSummary {
	sum, _ := s.processBatch(ctx, giveawayIDs, false)
	return sum
}

// ProcessChunk is ProcessBatch for a dispatched chunk: a storage failure stops
// the chunk and is returned so the whole chunk can be retried. Retrying is safe
// because selection is idempotent per giveaway.
func (s *WinnerService) ProcessChunk(ctx context.Context, giveawayIDs []string) (BatchSummary, error) {
	return s.processBatch(ctx, giveawayIDs, true)
}

func (s *WinnerService) processBatch(ctx context.Context, giveawayIDs []string, abortOnPersistence bool) (sum BatchSummary, err error) {
	const op = "process_winners_batch"
	mc := metrics.FromContext(ctx)
	mc.Start(op)
	defer func() { sum.Metrics = mc.End(op, err) }()

	sum.Messages = []string{}
	if len(giveawayIDs) == 0 {
		sum.addMessage("No giveaway IDs provided.")
		return sum, nil
	}
	mc.Increment(op, "batch_size", int64(len(giveawayIDs)))

	for _, id := range giveawayIDs {
		sel, selErr := s.selectWinner(ctx, id)
		if selErr != nil && abortOnPersistence && IsPersistence(selErr) {
			return sum, fmt.Errorf("giveaway %s: %w", id, selErr)
		}

		sum.Processed++
		mc.Increment(op, "processed_items", 1)
		sum.addMessage(selectionMessage(id, sel, selErr))
		if selErr != nil {
			sum.Errors++
			mc.Increment(op, "failed_selections", 1)
			continue
		}
		sum.Winners++
		mc.Increment(op, "successful_selections", 1)
	}

	if sum.MessagesOmitted > 0 {
		sum.Messages = append(sum.Messages, fmt.Sprintf("... and %d more", sum.MessagesOmitted))
	}

	logger.Infof("[BATCH] Processed %d giveaways, selected %d winners, encountered %d errors",
		sum.Processed, sum.Winners, sum.Errors)
	return sum, nil
}

func selectionMessage(id string, sel selection, err error) string {
	name := sel.title
	if name == "" {
		name = id
	}
	switch {
	case err == nil && sel.created:
		return fmt.Sprintf("Successfully selected winner for %s: user %s", name, sel.winner.UserID)
	case err == nil:
		return fmt.Sprintf("Giveaway %s already has a winner: user %s", name, sel.winner.UserID)
	case errors.Is(err, ErrNotYetExpired):
		return fmt.Sprintf("Giveaway %s has not ended yet. Cannot select a winner until the end date.", name)
	case errors.Is(err, ErrNoEntries):
		return fmt.Sprintf("No entries found for giveaway %s.", name)
	case errors.Is(err, ErrGiveawayNotFound):
		return fmt.Sprintf("Giveaway with ID %s does not exist.", id)
	default:
		return fmt.Sprintf("Error selecting winner for giveaway %s: %v", id, err)
	}
}
