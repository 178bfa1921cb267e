package workers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raildrops/models"
	"raildrops/services"
	"raildrops/testutil"
)

type processorFunc func(ctx context.Context, ids []string) (services.BatchSummary, error)

func (f processorFunc) ProcessChunk(ctx context.Context, ids []string) (services.BatchSummary, error) {
	return f(ctx, ids)
}

func winnersFor(ids []string) services.BatchSummary {
	sum := services.BatchSummary{Processed: len(ids), Winners: len(ids)}
	for _, id := range ids {
		sum.Messages = append(sum.Messages, "Successfully selected winner for "+id)
	}
	return sum
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("g-%02d", i)
	}
	return out
}

func startDispatcher(t *testing.T, p ChunkProcessor, opts DispatcherOptions) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	db := testutil.NewDB(t)
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	d := NewDispatcher(db, p, opts)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = d.Wait()
	})
	return d, cancel
}

func waitReady(t *testing.T, d *Dispatcher, taskID string) *BatchStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := d.Status(context.Background(), taskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Ready {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never became ready", taskID)
	return nil
}

func TestDispatchAggregatesChunks(t *testing.T) {
	var calls atomic.Int32
	p := processorFunc(func(_ context.Context, ids []string) (services.BatchSummary, error) {
		calls.Add(1)
		return winnersFor(ids), nil
	})
	d, _ := startDispatcher(t, p, DispatcherOptions{Workers: 2})

	run, err := d.Dispatch(context.Background(), ids(5), 2)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if run.Chunks != 3 || run.TotalGiveaways != 5 {
		t.Fatalf("run = %+v, want 3 chunks of 5 giveaways", run)
	}

	st := waitReady(t, d, run.ID)
	if st.Status != models.BatchSuccess {
		t.Fatalf("status = %s, want success", st.Status)
	}
	r := st.Result
	if r == nil || !r.Success || r.TotalProcessed != 5 || r.WinnersSelected != 5 || r.Errors != 0 || r.ChunksProcessed != 3 {
		t.Fatalf("report = %+v", r)
	}
	if calls.Load() != 3 {
		t.Fatalf("processor called %d times, want 3", calls.Load())
	}
}

func TestDispatchRetriesFailedChunk(t *testing.T) {
	var calls atomic.Int32
	p := processorFunc(func(_ context.Context, ids []string) (services.BatchSummary, error) {
		if calls.Add(1) <= 2 {
			return services.BatchSummary{}, errors.New("connection reset")
		}
		return winnersFor(ids), nil
	})
	d, _ := startDispatcher(t, p, DispatcherOptions{Workers: 1, MaxRetries: 3})

	run, err := d.Dispatch(context.Background(), ids(3), 10)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitReady(t, d, run.ID)
	if !st.Result.Success || st.Result.WinnersSelected != 3 {
		t.Fatalf("report = %+v", st.Result)
	}
	if calls.Load() != 3 {
		t.Fatalf("processor called %d times, want 3", calls.Load())
	}
}

func TestDispatchExhaustedChunkCountsAsErrors(t *testing.T) {
	var calls atomic.Int32
	p := processorFunc(func(_ context.Context, ids []string) (services.BatchSummary, error) {
		calls.Add(1)
		if ids[0] == "g-00" {
			return services.BatchSummary{}, errors.New("database unavailable")
		}
		return winnersFor(ids), nil
	})
	d, _ := startDispatcher(t, p, DispatcherOptions{Workers: 2, MaxRetries: 2})

	run, err := d.Dispatch(context.Background(), ids(4), 2)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitReady(t, d, run.ID)
	if st.Status != models.BatchSuccess {
		t.Fatalf("status = %s, want success (join completed)", st.Status)
	}
	r := st.Result
	if r.Success || r.TotalProcessed != 4 || r.Errors != 2 || r.WinnersSelected != 2 {
		t.Fatalf("report = %+v", r)
	}
	// 3 attempts for the failing chunk, 1 for the healthy one.
	if calls.Load() != 4 {
		t.Fatalf("processor called %d times, want 4", calls.Load())
	}
}

func TestDispatchEmptyCompletesImmediately(t *testing.T) {
	p := processorFunc(func(context.Context, []string) (services.BatchSummary, error) {
		t.Fatal("processor must not run for an empty batch")
		return services.BatchSummary{}, nil
	})
	d, _ := startDispatcher(t, p, DispatcherOptions{})

	run, err := d.Dispatch(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st, err := d.Status(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Ready || st.Status != models.BatchSuccess || st.Result.TotalProcessed != 0 || !st.Result.Success {
		t.Fatalf("status = %+v", st)
	}
	if run.ChunkSize != DefaultChunkSize {
		t.Fatalf("chunk size = %d, want default %d", run.ChunkSize, DefaultChunkSize)
	}
}

func TestDispatchCapsSummaryMessages(t *testing.T) {
	p := processorFunc(func(_ context.Context, ids []string) (services.BatchSummary, error) {
		return winnersFor(ids), nil
	})
	d, _ := startDispatcher(t, p, DispatcherOptions{Workers: 3})

	run, err := d.Dispatch(context.Background(), ids(30), 10)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	r := waitReady(t, d, run.ID).Result
	if len(r.SummaryMessages) != maxReportMessages || !r.HasMoreMessages {
		t.Fatalf("messages = %d has_more = %v", len(r.SummaryMessages), r.HasMoreMessages)
	}
	if r.SummaryMessages[0] != "Successfully selected winner for g-00" {
		t.Fatalf("first message = %q, want chunk order", r.SummaryMessages[0])
	}
}

func TestRetryDelaysDouble(t *testing.T) {
	p := processorFunc(func(context.Context, []string) (services.BatchSummary, error) {
		return services.BatchSummary{}, errors.New("database unavailable")
	})
	base := 10 * time.Millisecond
	d := NewDispatcher(testutil.NewDB(t), p, DispatcherOptions{Workers: 1, MaxRetries: 3, BaseDelay: base})

	var mu sync.Mutex
	var delays []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) bool {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = d.Wait()
	})

	run, err := d.Dispatch(context.Background(), ids(2), 10)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	r := waitReady(t, d, run.ID).Result
	if r.Errors != 2 || r.WinnersSelected != 0 {
		t.Fatalf("report = %+v", r)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{base, 2 * base, 4 * base}
	if !slices.Equal(delays, want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Hour) {
		t.Fatal("sleepCtx waited out the delay on a cancelled context")
	}
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Fatal("sleepCtx reported cancellation on a live context")
	}
}

// failFirstAttempt selects the first giveaway of the first chunk it sees and
// then fails the chunk with a storage error, leaving a committed winner behind.
type failFirstAttempt struct {
	winners *services.WinnerService
	failed  atomic.Bool
}

func (p *failFirstAttempt) ProcessChunk(ctx context.Context, ids []string) (services.BatchSummary, error) {
	if p.failed.CompareAndSwap(false, true) {
		if _, err := p.winners.SelectWinner(ctx, ids[0]); err != nil {
			return services.BatchSummary{}, err
		}
		return services.BatchSummary{}, &services.PersistenceError{Op: "fetch winning entry", Err: errors.New("connection reset")}
	}
	return p.winners.ProcessChunk(ctx, ids)
}

func TestRetriedChunkKeepsOneWinnerPerGiveaway(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Business(t, db, "Bakery", "Oslo")
	ended := time.Now().UTC().Add(-time.Hour)

	var giveawayIDs []string
	for i := 0; i < 4; i++ {
		g := testutil.Giveaway(t, db, b, fmt.Sprintf("Bread basket %d", i), ended)
		testutil.Entries(t, db, g, 3)
		giveawayIDs = append(giveawayIDs, g.ID)
	}

	p := &failFirstAttempt{winners: services.NewWinnerService(db)}
	d := NewDispatcher(db, p, DispatcherOptions{Workers: 1, MaxRetries: 2, BaseDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = d.Wait()
	})

	run, err := d.Dispatch(context.Background(), giveawayIDs, 2)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitReady(t, d, run.ID)
	if st.Status != models.BatchSuccess {
		t.Fatalf("status = %s, want success", st.Status)
	}
	r := st.Result
	if !r.Success || r.TotalProcessed != 4 || r.WinnersSelected != 4 || r.Errors != 0 || r.ChunksProcessed != 2 {
		t.Fatalf("report = %+v", r)
	}
	if want := "Giveaway Bread basket 0 already has a winner"; len(r.SummaryMessages) == 0 || !strings.HasPrefix(r.SummaryMessages[0], want) {
		t.Fatalf("first message = %v, want prefix %q", r.SummaryMessages, want)
	}

	for _, id := range giveawayIDs {
		var n int64
		if err := db.Model(&models.Winner{}).Where("giveaway_id = ?", id).Count(&n).Error; err != nil {
			t.Fatalf("count winners: %v", err)
		}
		if n != 1 {
			t.Fatalf("giveaway %s has %d winners, want 1", id, n)
		}
	}
}

func TestShutdownMarksRunFailed(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	p := processorFunc(func(ctx context.Context, _ []string) (services.BatchSummary, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return services.BatchSummary{}, ctx.Err()
	})
	db := testutil.NewDB(t)
	d := NewDispatcher(db, p, DispatcherOptions{Workers: 1, BaseDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	run, err := d.Dispatch(context.Background(), ids(4), 2)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	<-entered
	cancel()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	st, err := d.Status(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != models.BatchFailure || st.Result.Success || st.Result.ChunksProcessed != 0 {
		t.Fatalf("status = %+v report = %+v", st, st.Result)
	}

	if _, err := d.Dispatch(context.Background(), ids(1), 1); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("Dispatch after shutdown err = %v, want ErrDispatcherStopped", err)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	d, _ := startDispatcher(t, processorFunc(nil), DispatcherOptions{})
	if _, err := d.Status(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestSplitChunks(t *testing.T) {
	got := splitChunks(ids(5), 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 || got[2][0] != "g-04" {
		t.Fatalf("chunks = %v", got)
	}
	if splitChunks(nil, 3) != nil {
		t.Fatal("empty input should give no chunks")
	}
}
