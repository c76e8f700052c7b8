package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ruralpay/remittance/internal/database"
)

// PostgresSink appends events to remittance_events.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}
	if event.Details == nil {
		details = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remittance_events (id, tenant_id, remittance_id, event_type, actor_id, at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.TenantID, event.RemittanceID, event.EventType, event.ActorID, event.At, details)
	return database.ClassifyError(err, "record audit event")
}

// History returns the events of one remittance in the order they were recorded.
func (s *PostgresSink) History(ctx context.Context, tenantID, remittanceID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, remittance_id, event_type, actor_id, at, details
		FROM remittance_events
		WHERE tenant_id = $1 AND remittance_id = $2
		ORDER BY at, id`, tenantID, remittanceID)
	if err != nil {
		return nil, database.ClassifyError(err, "load audit history")
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.RemittanceID, &e.EventType, &e.ActorID, &e.At, &details); err != nil {
			return nil, database.ClassifyError(err, "scan audit event")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, database.ClassifyError(rows.Err(), "load audit history")
}
