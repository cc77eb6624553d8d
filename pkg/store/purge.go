package store

import (
	"context"
	"log/slog"
	"time"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// PurgeResult reports one purge pass.
type PurgeResult struct {
	MessagesDeleted  int64 `json:"messages_deleted"`
	AnalyticsDeleted int64 `json:"analytics_deleted"`
}

// PurgeExpired deletes messages (with their citations) and analytics events
// whose TTL has lapsed. The operation is idempotent and safe to run
// concurrently with live requests: it only targets rows already past expiry.
func (s *Store) PurgeExpired(ctx context.Context) (*PurgeResult, error) {
	now := s.now().UTC()
	result := &PurgeResult{}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM citations WHERE message_id IN (
			SELECT id FROM chat_messages WHERE expires_at < ?
		)`, now); err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to purge citations", err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE expires_at < ?`, now)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to purge messages", err)
	}
	result.MessagesDeleted, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE expires_at < ?`, now)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to purge analytics", err)
	}
	result.AnalyticsDeleted, _ = res.RowsAffected()

	return result, nil
}

// PurgeService runs TTL cleanup on a fixed interval.
type PurgeService struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewPurgeService creates a purge service. interval <= 0 defaults to one
// hour.
func NewPurgeService(store *Store, interval time.Duration) *PurgeService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PurgeService{
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "purge-service"),
	}
}

// Run executes purge passes until ctx is cancelled. An individual pass
// failing is logged and does not stop the loop.
func (p *PurgeService) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Purge service started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Purge service stopped")
			return
		case <-ticker.C:
			result, err := p.store.PurgeExpired(ctx)
			if err != nil {
				p.logger.Error("Purge pass failed", "error", err)
				continue
			}
			if result.MessagesDeleted > 0 || result.AnalyticsDeleted > 0 {
				p.logger.Info("Purged expired rows",
					"messages", result.MessagesDeleted,
					"analytics", result.AnalyticsDeleted,
				)
			}
		}
	}
}
