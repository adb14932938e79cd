package evidence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/carraway/dossier/internal/bus"
	"github.com/carraway/dossier/internal/canonical"
)

// PruneOrphans deletes every record of the given source kind whose
// SourceUID is absent from liveUIDs, the set of ids currently observable
// upstream.
//
// For mail, scopedToSenderEmails restricts eligible deletions to records
// whose sender is in the set. An inbox import may deliberately skip
// messages from not-yet-triaged senders; without scoping, their evidence
// would be wrongly deleted for being absent due to upstream filtering
// rather than actual deletion. An empty scope means no scoping.
//
// Returns the number of records deleted; nothing to do is not an error.
func (s *Service) PruneOrphans(ctx context.Context, source Source, liveUIDs []string, scopedToSenderEmails []string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	live := make(map[string]struct{}, len(liveUIDs))
	for _, uid := range liveUIDs {
		live[uid] = struct{}{}
	}

	var scope map[string]struct{}
	if source == SourceMail && len(scopedToSenderEmails) > 0 {
		scope = make(map[string]struct{}, len(scopedToSenderEmails))
		for _, e := range scopedToSenderEmails {
			if key := canonical.Email(e); key != "" {
				scope[key] = struct{}{}
			}
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_uid FROM evidence
		WHERE source = ? AND source_uid IS NOT NULL
	`, string(source))
	if err != nil {
		return 0, fmt.Errorf("failed to query evidence for pruning: %w", err)
	}

	type candidate struct {
		id        string
		sourceUID string
	}
	var orphans []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.sourceUID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan prune candidate: %w", err)
		}
		if _, ok := live[c.sourceUID]; ok {
			continue
		}
		orphans = append(orphans, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed iterating prune candidates: %w", err)
	}
	rows.Close()

	if len(orphans) == 0 {
		return 0, nil
	}

	// Scope check happens outside the delete transaction; the sender is the
	// organizer hint on a mail record.
	if scope != nil {
		scoped := orphans[:0]
		for _, c := range orphans {
			sender, err := s.senderEmail(c.id)
			if err != nil {
				return 0, err
			}
			if _, ok := scope[canonical.Email(sender)]; ok {
				scoped = append(scoped, c)
			}
		}
		orphans = scoped
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, c := range orphans {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := tx.Exec(`DELETE FROM evidence WHERE id = ?`, c.id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete orphan: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
			_ = bus.Emit(tx, "evidence.deleted", string(source), c.id, map[string]any{
				"source_uid": c.sourceUID,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return deleted, nil
}

// senderEmail returns the raw email of a record's organizer hint, or "".
func (s *Service) senderEmail(evidenceID string) (string, error) {
	var raw sql.NullString
	err := s.db.QueryRow(`
		SELECT raw_email FROM evidence_hints
		WHERE evidence_id = ? AND is_organizer = 1
		ORDER BY position
		LIMIT 1
	`, evidenceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query sender hint: %w", err)
	}
	if raw.Valid {
		return raw.String, nil
	}
	return "", nil
}
