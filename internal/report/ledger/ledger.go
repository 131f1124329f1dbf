// Package ledger awards points for resolved reports and records the report
// itself. Both writes belong to the same unit of work as the violation change.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freewalk/internal/platform/config"
	"freewalk/internal/report/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
)

// Store is the write surface of the ledger.
type Store interface {
	InsertReport(ctx context.Context, r models.Report) (id.ReportID, error)
	// AddPoints increments the balance by delta and returns the new total.
	// It returns sentinel.ErrNotFound when the user does not exist.
	AddPoints(ctx context.Context, userID id.UserID, delta int64) (int64, error)
}

// Ledger applies the configured rewards.
type Ledger struct {
	rewardNew       int64
	rewardConfirmed int64
}

func New(cfg config.Matching) *Ledger {
	return &Ledger{rewardNew: cfg.RewardNew, rewardConfirmed: cfg.RewardConfirmed}
}

// PointsFor returns the reward for an outcome.
func (l *Ledger) PointsFor(kind models.OutcomeKind) (int64, error) {
	switch kind {
	case models.OutcomeNew:
		return l.rewardNew, nil
	case models.OutcomeConfirmed:
		return l.rewardConfirmed, nil
	default:
		return 0, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown outcome %q", kind))
	}
}

// ApplyReward credits the user for one resolved report. Callers invoke it
// exactly once per recorded report inside the same unit of work.
func (l *Ledger) ApplyReward(ctx context.Context, store Store, userID id.UserID, outcome models.MatchOutcome) (awarded, total int64, err error) {
	awarded, err = l.PointsFor(outcome.Kind)
	if err != nil {
		return 0, 0, err
	}
	if awarded <= 0 {
		return 0, 0, dErrors.New(dErrors.CodeInvariantViolation, "reward must be positive")
	}
	total, err = store.AddPoints(ctx, userID, awarded)
	if err != nil {
		return 0, 0, fmt.Errorf("add points: %w", err)
	}
	return awarded, total, nil
}

// RecordReport appends the immutable report row.
func RecordReport(ctx context.Context, store Store, violationID id.ViolationID, userID id.UserID, storageRef string, now time.Time) (id.ReportID, error) {
	if strings.TrimSpace(storageRef) == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "storage reference is required")
	}
	reportID, err := store.InsertReport(ctx, models.Report{
		ViolationID: violationID,
		UserID:      userID,
		StorageRef:  storageRef,
		CreatedAt:   now,
	})
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return reportID, nil
}
