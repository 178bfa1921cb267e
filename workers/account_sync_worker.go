package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"raildrops/models"

	"github.com/google/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteAccount is one account as returned by the accounts service.
type RemoteAccount struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	City        string    `json:"city"`
	AccountType string    `json:"account_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type accountChangesResponse struct {
	Accounts []RemoteAccount `json:"accounts"`
}

// AccountSyncWorker mirrors account kind and home city into the local users table.
type AccountSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewAccountSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration) *AccountSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AccountSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *AccountSyncWorker) Start(ctx context.Context) {
	logger.Info("🔁 Starting Account Sync Worker (accounts service → users)…")
	go w.run(ctx)
}

func (w *AccountSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		logger.Warningf("⚠️ Initial account sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx, w.lastSyncTime(ctx)); err != nil {
				logger.Errorf("❌ Account sync batch failed: %v", err)
			}
		case <-ctx.Done():
			logger.Info("⏹️ Account Sync Worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest updated_at already mirrored, or the epoch.
func (w *AccountSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	var latest models.User
	err := w.db.WithContext(ctx).Order("updated_at DESC").Take(&latest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warningf("[SYNC] ⚠️ Could not read last sync time: %v", err)
		}
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

// SyncOnce pulls accounts changed since the given time and upserts them.
// It returns how many rows were written.
func (w *AccountSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid accounts service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	logger.Infof("[SYNC] ➡️  GET %s", finalURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to accounts service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("accounts service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response accountChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("decode accounts response: %w", err)
	}
	if len(response.Accounts) == 0 {
		logger.Infof("[SYNC] ✅ No account changes since %s", sinceStr)
		return 0, nil
	}

	var upserted, failed int
	for _, remote := range response.Accounts {
		if remote.ID == "" {
			failed++
			continue
		}
		local := models.User{
			ID:        remote.ID,
			Email:     remote.Email,
			City:      strings.TrimSpace(remote.City),
			Kind:      models.ParseAccountKind(remote.AccountType),
			CreatedAt: remote.CreatedAt,
			UpdatedAt: remote.UpdatedAt,
		}
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "city", "kind", "updated_at"}),
		}).Create(&local).Error; err != nil {
			failed++
			logger.Warningf("[SYNC] ⚠️ Failed to upsert account %s: %v", remote.ID, err)
			continue
		}
		upserted++
	}

	logger.Infof("[SYNC] ✅ Synced %d account(s) (%d upserted, %d errors)", len(response.Accounts), upserted, failed)
	return upserted, nil
}
