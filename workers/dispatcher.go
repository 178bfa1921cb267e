package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"raildrops/metrics"
	"raildrops/models"
	"raildrops/services"

	"github.com/google/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultChunkSize  = 100
	maxReportMessages = 20
)

var (
	ErrTaskNotFound      = errors.New("batch task not found")
	ErrDispatcherStopped = errors.New("dispatcher is not running")
)

// ChunkProcessor runs winner selection over one chunk of giveaway IDs.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, giveawayIDs []string) (services.BatchSummary, error)
}

type DispatcherOptions struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	BaseDelay  time.Duration
	Exporter   *metrics.Exporter
}

// Dispatcher splits a batch of giveaways into chunks and runs them on a
// worker pool. Each batch is tracked as a BatchRun row that admins can poll.
type Dispatcher struct {
	db         *gorm.DB
	processor  ChunkProcessor
	exporter   *metrics.Exporter
	workers    int
	maxRetries int
	baseDelay  time.Duration
	queue      chan chunkTask

	// sleep waits out a retry delay and reports false if ctx ended first.
	sleep func(ctx context.Context, delay time.Duration) bool

	mu        sync.Mutex
	runs      map[string]*runState
	ctx       context.Context
	group     *errgroup.Group
	enqueuers sync.WaitGroup
}

type chunkTask struct {
	runID string
	index int
	ids   []string
}

type runState struct {
	remaining int
	started   bool
	cancelled int
	results   []services.BatchSummary
}

// BatchStatus is what an admin sees when polling a dispatched batch.
type BatchStatus struct {
	TaskID string                `json:"task_id"`
	Status models.BatchRunStatus `json:"status"`
	Ready  bool                  `json:"ready"`
	Result *models.BatchReport   `json:"result,omitempty"`
}

func NewDispatcher(db *gorm.DB, processor ChunkProcessor, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Dispatcher{
		db:         db,
		processor:  processor,
		exporter:   opts.Exporter,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		queue:      make(chan chunkTask, opts.QueueSize),
		sleep:      sleepCtx,
		runs:       make(map[string]*runState),
	}
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	logger.Infof("🔁 Starting winner dispatcher (%d workers, %d retries)…", d.workers, d.maxRetries)
	g, gctx := errgroup.WithContext(ctx)
	d.mu.Lock()
	d.ctx = gctx
	d.group = g
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
}

// Wait blocks until every worker has exited, then marks chunks that never ran
// as cancelled so their runs are finalized.
func (d *Dispatcher) Wait() error {
	d.mu.Lock()
	g := d.group
	d.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	d.enqueuers.Wait()
	d.drain()
	logger.Info("⏹️ Winner dispatcher stopped")
	return err
}

// Dispatch persists a pending BatchRun and queues its chunks. It returns as
// soon as the run is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, giveawayIDs []string, chunkSize int) (*models.BatchRun, error) {
	d.mu.Lock()
	runCtx := d.ctx
	d.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return nil, ErrDispatcherStopped
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunks := splitChunks(giveawayIDs, chunkSize)
	run := &models.BatchRun{
		ID:             uuid.NewString(),
		Status:         models.BatchPending,
		TotalGiveaways: len(giveawayIDs),
		ChunkSize:      chunkSize,
		Chunks:         len(chunks),
	}
	if len(chunks) == 0 {
		now := time.Now().UTC()
		run.Status = models.BatchSuccess
		run.StartedAt = &now
		run.FinishedAt = &now
		run.Report = datatypes.NewJSONType(models.BatchReport{
			Success:         true,
			CompletedAt:     now,
			SummaryMessages: []string{"No giveaway IDs provided."},
		})
	}
	if err := d.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create batch run: %w", err)
	}
	if len(chunks) == 0 {
		return run, nil
	}

	d.mu.Lock()
	d.runs[run.ID] = &runState{
		remaining: len(chunks),
		results:   make([]services.BatchSummary, len(chunks)),
	}
	d.mu.Unlock()

	d.enqueuers.Add(1)
	go func() {
		defer d.enqueuers.Done()
		for i, ids := range chunks {
			t := chunkTask{runID: run.ID, index: i, ids: ids}
			select {
			case d.queue <- t:
			case <-runCtx.Done():
				d.finishChunk(t, services.BatchSummary{}, true)
			}
		}
	}()

	logger.Infof("[DISPATCH] 📤 Dispatched %d giveaways in %d chunks (task %s)", len(giveawayIDs), len(chunks), run.ID)
	return run, nil
}

// Status reports the state of a dispatched batch and its report once ready.
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*BatchStatus, error) {
	var run models.BatchRun
	if err := d.db.WithContext(ctx).Where("id = ?", taskID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("load batch run: %w", err)
	}
	st := &BatchStatus{TaskID: run.ID, Status: run.Status, Ready: run.Status.Ready()}
	if st.Ready {
		report := run.Report.Data()
		st.Result = &report
	}
	return st, nil
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case t := <-d.queue:
			d.runChunk(ctx, t)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case t := <-d.queue:
			d.finishChunk(t, services.BatchSummary{}, true)
		default:
			return
		}
	}
}

func (d *Dispatcher) runChunk(ctx context.Context, t chunkTask) {
	d.markStarted(ctx, t.runID)

	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := d.baseDelay << (attempt - 1)
			logger.Warningf("[DISPATCH] ⚠️ Chunk %d of task %s failed (%v), retry %d/%d in %s",
				t.index, t.runID, err, attempt, d.maxRetries, delay)
			if !d.sleep(ctx, delay) {
				d.finishChunk(t, services.BatchSummary{}, true)
				return
			}
		}

		mc := metrics.NewCollector(d.exporter)
		var sum services.BatchSummary
		sum, err = d.processor.ProcessChunk(metrics.WithCollector(ctx, mc), t.ids)
		if err == nil {
			d.finishChunk(t, sum, false)
			return
		}
		if ctx.Err() != nil {
			d.finishChunk(t, services.BatchSummary{}, true)
			return
		}
	}

	taskErr := &services.TaskError{GiveawayIDs: t.ids, Attempts: d.maxRetries + 1, Err: err}
	logger.Errorf("[DISPATCH] ❌ %v (task %s, giveaways: %s)", taskErr, t.runID, strings.Join(t.ids, ", "))
	d.finishChunk(t, services.BatchSummary{
		Processed: len(t.ids),
		Errors:    len(t.ids),
		Messages:  []string{fmt.Sprintf("Chunk %d failed after %d attempts: %v", t.index+1, taskErr.Attempts, err)},
	}, false)
}

func (d *Dispatcher) markStarted(ctx context.Context, runID string) {
	d.mu.Lock()
	st, ok := d.runs[runID]
	first := ok && !st.started
	if first {
		st.started = true
	}
	d.mu.Unlock()
	if !first {
		return
	}

	now := time.Now().UTC()
	if err := d.db.WithContext(ctx).Model(&models.BatchRun{}).
		Where("id = ? AND status = ?", runID, models.BatchPending).
		Updates(map[string]any{"status": models.BatchStarted, "started_at": now}).Error; err != nil {
		logger.Warningf("[DISPATCH] ⚠️ Failed to mark task %s started: %v", runID, err)
	}
}

// finishChunk records one chunk's outcome and finalizes the run after the last one.
func (d *Dispatcher) finishChunk(t chunkTask, sum services.BatchSummary, cancelled bool) {
	d.mu.Lock()
	st, ok := d.runs[t.runID]
	if !ok {
		d.mu.Unlock()
		return
	}
	st.results[t.index] = sum
	if cancelled {
		st.cancelled++
	}
	st.remaining--
	done := st.remaining == 0
	if done {
		delete(d.runs, t.runID)
	}
	d.mu.Unlock()

	if done {
		d.complete(t.runID, st)
	}
}

func (d *Dispatcher) complete(runID string, st *runState) {
	report := aggregateReport(st.results, st.cancelled)
	status := models.BatchSuccess
	if st.cancelled > 0 {
		status = models.BatchFailure
	}

	d.mu.Lock()
	base := d.ctx
	d.mu.Unlock()
	ctx := context.WithoutCancel(base)

	if err := d.db.WithContext(ctx).Model(&models.BatchRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":      status,
			"finished_at": report.CompletedAt,
			"report":      datatypes.NewJSONType(report),
		}).Error; err != nil {
		logger.Errorf("[DISPATCH] ❌ Failed to store report for task %s: %v", runID, err)
		return
	}
	logger.Infof("[DISPATCH] ✅ Task %s %s: processed %d, winners %d, errors %d, chunks %d",
		runID, status, report.TotalProcessed, report.WinnersSelected, report.Errors, report.ChunksProcessed)
}

func aggregateReport(results []services.BatchSummary, cancelled int) models.BatchReport {
	report := models.BatchReport{
		CompletedAt:     time.Now().UTC(),
		ChunksProcessed: len(results) - cancelled,
		SummaryMessages: []string{},
	}
	if cancelled > 0 {
		report.SummaryMessages = append(report.SummaryMessages,
			fmt.Sprintf("%d chunk(s) cancelled by shutdown before completion.", cancelled))
	}
	for _, r := range results {
		report.TotalProcessed += r.Processed
		report.WinnersSelected += r.Winners
		report.Errors += r.Errors
		if r.MessagesOmitted > 0 {
			report.HasMoreMessages = true
		}
		for _, msg := range r.Messages {
			if len(report.SummaryMessages) >= maxReportMessages {
				report.HasMoreMessages = true
				break
			}
			report.SummaryMessages = append(report.SummaryMessages, msg)
		}
	}
	report.Success = report.Errors == 0 && cancelled == 0
	return report
}

func splitChunks(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
