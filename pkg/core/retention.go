package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiermem/tiermem-go/pkg/index"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// RetentionPolicy removes memories that have aged out without proving
// useful. A memory is swept only when all three hold: it is older than the
// retention window, its importance is low, and it was rarely accessed.
// Important or frequently accessed memories are kept indefinitely.
type RetentionPolicy struct {
	days           int
	minImportance  float64
	minAccessCount int

	index   index.VectorIndex
	records store.RecordStore
	logger  *slog.Logger
}

// newRetentionPolicy builds the policy from the config, applying defaults
// for unset thresholds.
func newRetentionPolicy(cfg *Config, idx index.VectorIndex, records store.RecordStore, logger *slog.Logger) *RetentionPolicy {
	minImportance := cfg.Retention.MinImportance
	if minImportance <= 0 {
		minImportance = 0.3
	}
	minAccess := cfg.Retention.MinAccessCount
	if minAccess <= 0 {
		minAccess = 2
	}
	return &RetentionPolicy{
		days:           cfg.retentionDays(),
		minImportance:  minImportance,
		minAccessCount: minAccess,
		index:          idx,
		records:        records,
		logger:         logger.With("component", "retention"),
	}
}

// Sweep removes the user's expired low-value memories from both the vector
// index and the record store.
//
// Each candidate is deleted independently; a failure on one entry is logged
// and the sweep continues with the rest. Returns an error only when the
// candidate query itself fails.
func (p *RetentionPolicy) Sweep(ctx context.Context, userID string) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.days)
	candidates, err := p.records.QueryEntries(ctx, &store.EntryFilter{
		UserID:           userID,
		CreatedBefore:    cutoff,
		ImportanceBelow:  p.minImportance,
		AccessCountBelow: p.minAccessCount,
	})
	if err != nil {
		return NewError("Sweep", err)
	}

	for _, entry := range candidates {
		if err := p.index.Delete(ctx, userID, []string{entry.ID}); err != nil {
			p.logger.Warn("failed to remove expired memory from index",
				"memory_id", entry.ID, "error", err)
			continue
		}
		if err := p.records.DeleteEntry(ctx, entry.ID); err != nil {
			p.logger.Warn("failed to remove expired memory record",
				"memory_id", entry.ID, "error", err)
		}
	}
	return nil
}
