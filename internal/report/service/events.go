package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"freewalk/internal/outbox"
	"freewalk/internal/report/models"
)

// EventReportResolved is emitted once per recorded report.
const EventReportResolved = "report.resolved"

type resolvedPayload struct {
	EventID       string    `json:"event_id"`
	ReportID      int64     `json:"report_id"`
	ViolationID   int64     `json:"violation_id"`
	UserID        string    `json:"user_id"`
	Category      string    `json:"category"`
	Outcome       string    `json:"outcome"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	EntityRef     string    `json:"entity_reference,omitempty"`
	WardID        *int64    `json:"ward_id,omitempty"`
	PointsAwarded int64     `json:"points_awarded"`
	TotalPoints   int64     `json:"total_points"`
	StorageRef    string    `json:"storage_reference"`
	OccurredAt    time.Time `json:"occurred_at"`
	RequestID     string    `json:"request_id,omitempty"`
}

func newResolvedEvent(sub models.Submission, r *models.Result, now time.Time, requestID string) (outbox.Event, error) {
	eventID := uuid.New()
	payload := resolvedPayload{
		EventID:       eventID.String(),
		ReportID:      int64(r.ReportID),
		ViolationID:   int64(r.ViolationID),
		UserID:        sub.UserID.String(),
		Category:      string(sub.Category),
		Outcome:       string(r.Outcome),
		Latitude:      sub.Location.Lat,
		Longitude:     sub.Location.Lon,
		EntityRef:     sub.EntityRef,
		PointsAwarded: r.PointsAwarded,
		TotalPoints:   r.TotalPoints,
		StorageRef:    sub.StorageRef,
		OccurredAt:    now.UTC(),
		RequestID:     requestID,
	}
	if r.WardID != nil {
		w := int64(*r.WardID)
		payload.WardID = &w
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("marshal report event: %w", err)
	}
	return outbox.Event{
		ID:            eventID,
		AggregateType: "violation",
		AggregateID:   r.ViolationID.String(),
		EventType:     EventReportResolved,
		Payload:       body,
		CreatedAt:     now,
	}, nil
}
