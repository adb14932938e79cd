package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carraway/dossier/internal/bus"
)

// ErrNotConfigured is returned by every public operation when the service
// has no store attached. Operations fail fast before touching storage.
var ErrNotConfigured = errors.New("evidence store not configured")

// dbtx covers both *sql.DB and *sql.Tx so record helpers can run inside or
// outside a batch transaction.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Service is the evidence reconciliation engine. All mutation entry points
// are single-writer: each runs to completion before the next begins, and
// batch operations commit exactly once at their end.
type Service struct {
	db *sql.DB
}

// New returns a Service backed by db. A nil db yields a service whose every
// operation returns ErrNotConfigured.
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) ready() error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return nil
}

// FetchAll returns every record, newest occurrence first.
func (s *Service) FetchAll(ctx context.Context) ([]Record, error) {
	return s.fetchWhere(ctx, "", nil)
}

// FetchNeedsReview returns records awaiting triage, newest first.
func (s *Service) FetchNeedsReview(ctx context.Context) ([]Record, error) {
	return s.fetchWhere(ctx, "WHERE state = ?", []any{string(StateNeedsReview)})
}

// FetchDone returns reviewed records, newest first.
func (s *Service) FetchDone(ctx context.Context) ([]Record, error) {
	return s.fetchWhere(ctx, "WHERE state = ?", []any{string(StateDone)})
}

func (s *Service) fetchWhere(ctx context.Context, where string, args []any) ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := `
		SELECT id, state, source_uid, source, occurred_at, ended_at,
		       title, snippet, body_text, created_at, updated_at
		FROM evidence ` + where + `
		ORDER BY occurred_at DESC, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating evidence: %w", err)
	}

	for i := range out {
		if err := s.loadChildren(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Fetch returns one record by id, or nil if absent.
func (s *Service) Fetch(ctx context.Context, id string) (*Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.fetchOne(ctx, "id = ?", id)
}

// FetchBySourceUID returns one record by its dedup key, or nil if absent.
func (s *Service) FetchBySourceUID(ctx context.Context, sourceUID string) (*Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.fetchOne(ctx, "source_uid = ?", sourceUID)
}

func (s *Service) fetchOne(ctx context.Context, cond string, arg any) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, source_uid, source, occurred_at, ended_at,
		       title, snippet, body_text, created_at, updated_at
		FROM evidence
		WHERE `+cond+`
		LIMIT 1`, arg)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var sourceUID sql.NullString
	var endedAt sql.NullInt64
	var bodyText sql.NullString
	var occurredAt, createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.State, &sourceUID, &r.Source, &occurredAt, &endedAt,
		&r.Title, &r.Snippet, &bodyText, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("failed to scan evidence: %w", err)
	}
	if sourceUID.Valid {
		r.SourceUID = sourceUID.String
	}
	r.OccurredAt = time.Unix(occurredAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		r.EndedAt = &t
	}
	if bodyText.Valid {
		r.BodyText = &bodyText.String
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return r, nil
}

func (s *Service) loadChildren(r *Record) error {
	rows, err := s.db.Query(`
		SELECT display_name, is_organizer, is_verified, raw_email
		FROM evidence_hints
		WHERE evidence_id = ?
		ORDER BY position`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query hints: %w", err)
	}
	r.ParticipantHints = nil
	for rows.Next() {
		var h ParticipantHint
		var org, ver int
		var rawEmail sql.NullString
		if err := rows.Scan(&h.DisplayName, &org, &ver, &rawEmail); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan hint: %w", err)
		}
		h.IsOrganizer = org == 1
		h.IsVerified = ver == 1
		if rawEmail.Valid {
			h.RawEmail = rawEmail.String
		}
		r.ParticipantHints = append(r.ParticipantHints, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed iterating hints: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT kind, message, confidence
		FROM evidence_signals
		WHERE evidence_id = ?
		ORDER BY position`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query signals: %w", err)
	}
	r.Signals = nil
	for rows.Next() {
		var sig Signal
		if err := rows.Scan(&sig.Kind, &sig.Message, &sig.Confidence); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan signal: %w", err)
		}
		r.Signals = append(r.Signals, sig)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed iterating signals: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT p.id, p.name
		FROM evidence_people ep
		JOIN people p ON ep.person_id = p.id
		WHERE ep.evidence_id = ?
		ORDER BY p.name, p.id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query linked people: %w", err)
	}
	defer rows.Close()
	r.LinkedPeople = nil
	for rows.Next() {
		var lp LinkedPerson
		if err := rows.Scan(&lp.ID, &lp.Name); err != nil {
			return fmt.Errorf("failed to scan linked person: %w", err)
		}
		r.LinkedPeople = append(r.LinkedPeople, lp)
	}
	return rows.Err()
}

// MarkAsReviewed flips a record's triage state to done. Pure state toggle,
// independent of merge logic.
func (s *Service) MarkAsReviewed(ctx context.Context, id string) error {
	return s.setState(ctx, id, StateDone)
}

// MarkAsNeedsReview flips a record's triage state back to needsReview.
func (s *Service) MarkAsNeedsReview(ctx context.Context, id string) error {
	return s.setState(ctx, id, StateNeedsReview)
}

func (s *Service) setState(ctx context.Context, id string, state State) error {
	if err := s.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), now, id)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("evidence %s not found", id)
	}
	return nil
}

// Create inserts a manual record directly, bypassing source-specific merge.
// A nil SourceUID is allowed; non-nil UIDs still dedup against imports.
func (s *Service) Create(ctx context.Context, r Record) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.State == "" {
		r.State = StateNeedsReview
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	now := time.Now().Unix()
	var sourceUID any
	if r.SourceUID != "" {
		sourceUID = r.SourceUID
	}
	var endedAt any
	if r.EndedAt != nil {
		endedAt = r.EndedAt.Unix()
	}
	var bodyText any
	if r.BodyText != nil && !bodyRedacted(r.Source) {
		bodyText = *r.BodyText
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, state, source_uid, source, occurred_at, ended_at,
		                      title, snippet, body_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, string(r.State), sourceUID, string(r.Source), r.OccurredAt.Unix(), endedAt,
		r.Title, r.Snippet, bodyText, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert evidence: %w", err)
	}
	if err := replaceHints(s.db, r.ID, r.ParticipantHints); err != nil {
		return "", err
	}
	if err := replaceSignals(s.db, r.ID, r.Signals); err != nil {
		return "", err
	}
	_ = bus.Emit(s.db, "evidence.created", "manual", r.ID, map[string]any{
		"source": string(r.Source),
	})
	return r.ID, nil
}

// DeleteAll unconditionally wipes the evidence store. Child rows cascade.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM evidence`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete evidence: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// bodyRedacted reports whether bodyText must be forced nil for a source.
// Mail and iMessage bodies never reach the store.
func bodyRedacted(source Source) bool {
	return source == SourceMail || source == SourceIMessage
}

func replaceHints(q dbtx, evidenceID string, hints []ParticipantHint) error {
	if _, err := q.Exec(`DELETE FROM evidence_hints WHERE evidence_id = ?`, evidenceID); err != nil {
		return fmt.Errorf("failed to clear hints: %w", err)
	}
	for i, h := range hints {
		org, ver := 0, 0
		if h.IsOrganizer {
			org = 1
		}
		if h.IsVerified {
			ver = 1
		}
		var rawEmail any
		if h.RawEmail != "" {
			rawEmail = h.RawEmail
		}
		_, err := q.Exec(`
			INSERT INTO evidence_hints (evidence_id, position, display_name, is_organizer, is_verified, raw_email)
			VALUES (?, ?, ?, ?, ?, ?)
		`, evidenceID, i, h.DisplayName, org, ver, rawEmail)
		if err != nil {
			return fmt.Errorf("failed to insert hint: %w", err)
		}
	}
	return nil
}

func replaceSignals(q dbtx, evidenceID string, signals []Signal) error {
	if _, err := q.Exec(`DELETE FROM evidence_signals WHERE evidence_id = ?`, evidenceID); err != nil {
		return fmt.Errorf("failed to clear signals: %w", err)
	}
	for i, sig := range signals {
		_, err := q.Exec(`
			INSERT INTO evidence_signals (evidence_id, position, kind, message, confidence)
			VALUES (?, ?, ?, ?, ?)
		`, evidenceID, i, sig.Kind, sig.Message, sig.Confidence)
		if err != nil {
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}
	return nil
}

// relinkPeople rewrites a record's identity links via clear-then-append so
// every association change is visible to the store as explicit removes and
// adds rather than a wholesale assignment.
func relinkPeople(q dbtx, evidenceID string, personIDs []string) error {
	if _, err := q.Exec(`DELETE FROM evidence_people WHERE evidence_id = ?`, evidenceID); err != nil {
		return fmt.Errorf("failed to clear linked people: %w", err)
	}
	for _, pid := range personIDs {
		_, err := q.Exec(`
			INSERT INTO evidence_people (evidence_id, person_id)
			VALUES (?, ?)
			ON CONFLICT(evidence_id, person_id) DO NOTHING
		`, evidenceID, pid)
		if err != nil {
			return fmt.Errorf("failed to link person: %w", err)
		}
	}
	return nil
}
