package bus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one entry on the change feed. Downstream consumers (UI refresh,
// notification hooks) tail the feed by seq.
type Event struct {
	Seq        int64   `json:"seq"`
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Importer   *string `json:"importer,omitempty"`
	EvidenceID *string `json:"evidence_id,omitempty"`
	CreatedAt  int64   `json:"created_at"`
	Payload    *string `json:"payload_json,omitempty"`
}

// Execer covers *sql.DB and *sql.Tx so events can be emitted inside a batch
// transaction and commit (or roll back) with it.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Emit appends one event to the change feed.
func Emit(db Execer, typ string, importer string, evidenceID string, payload any) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}
	now := time.Now().Unix()
	id := uuid.New().String()

	var importerVal any
	if importer != "" {
		importerVal = importer
	}
	var evidenceVal any
	if evidenceID != "" {
		evidenceVal = evidenceID
	}
	var payloadVal any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadVal = string(b)
	}

	_, err := db.Exec(`
		INSERT INTO bus_events (id, type, importer, evidence_id, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, typ, importerVal, evidenceVal, now, payloadVal)
	if err != nil {
		return fmt.Errorf("failed to insert bus event: %w", err)
	}
	return nil
}

// List returns up to limit events with seq greater than afterSeq, oldest
// first.
func List(db *sql.DB, afterSeq int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT seq, id, type, importer, evidence_id, created_at, payload_json
		FROM bus_events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var importer sql.NullString
		var evidenceID sql.NullString
		var payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &importer, &evidenceID, &e.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan bus event: %w", err)
		}
		if importer.Valid {
			e.Importer = &importer.String
		}
		if evidenceID.Valid {
			e.EvidenceID = &evidenceID.String
		}
		if payload.Valid {
			e.Payload = &payload.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating bus events: %w", err)
	}
	return out, nil
}
