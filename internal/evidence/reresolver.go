package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/carraway/dossier/internal/bus"
	"github.com/carraway/dossier/internal/directory"
)

// participantSources are the source kinds that carry participant hints.
var participantSources = []Source{
	SourceCalendar, SourceMail, SourceIMessage, SourcePhoneCall, SourceFaceTime,
}

// RefreshParticipantResolution re-applies identity resolution across
// existing evidence after a directory change. The index is rebuilt from the
// current full directory, each hint with a non-empty raw handle gets its
// verified flag recomputed, and the linked identity set is recomputed from
// the hints. A record is written only when one of the two actually changed,
// so an unchanged directory produces zero writes.
//
// Cost is O(records x hints); fine at single-user scale.
func (s *Service) RefreshParticipantResolution(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	if err := s.ready(); err != nil {
		return res, err
	}

	idx, err := directory.LoadIndex(s.db)
	if err != nil {
		return res, fmt.Errorf("failed to load identity directory: %w", err)
	}

	args := make([]any, len(participantSources))
	placeholders := ""
	for i, src := range participantSources {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = string(src)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT e.id
		FROM evidence e
		JOIN evidence_hints h ON h.evidence_id = e.id
		WHERE e.source IN (`+placeholders+`)
		  AND h.raw_email IS NOT NULL AND h.raw_email != ''
	`, args...)
	if err != nil {
		return res, fmt.Errorf("failed to query resolvable evidence: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return res, fmt.Errorf("failed to scan evidence id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, fmt.Errorf("failed iterating evidence ids: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return res, nil
	}

	type pending struct {
		id       string
		verified map[int]bool // position -> new flag, only changed ones
		linked   []string     // full new id set, nil when unchanged
	}
	var changes []pending

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		hints, positions, err := s.loadHintRows(id)
		if err != nil {
			return res, err
		}

		p := pending{id: id, verified: map[int]bool{}}
		for i, h := range hints {
			if h.RawEmail == "" {
				continue
			}
			now := verifyHandle(idx, h.RawEmail)
			if now != h.IsVerified {
				p.verified[positions[i]] = now
			}
		}

		current, err := s.linkedIDs(id)
		if err != nil {
			return res, err
		}
		next := personIDs(linkPeopleForHints(idx, hints))
		if !sameIDSet(current, next) {
			p.linked = next
			if p.linked == nil {
				p.linked = []string{}
			}
		}

		if len(p.verified) > 0 || p.linked != nil {
			changes = append(changes, p)
		}
	}

	if len(changes) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, p := range changes {
		for pos, v := range p.verified {
			flag := 0
			if v {
				flag = 1
			}
			_, err := tx.Exec(`
				UPDATE evidence_hints SET is_verified = ?
				WHERE evidence_id = ? AND position = ?
			`, flag, p.id, pos)
			if err != nil {
				return res, fmt.Errorf("failed to update hint verification: %w", err)
			}
		}
		if p.linked != nil {
			if err := relinkPeople(tx, p.id, p.linked); err != nil {
				return res, err
			}
		}
		if _, err := tx.Exec(`UPDATE evidence SET updated_at = ? WHERE id = ?`, now, p.id); err != nil {
			return res, fmt.Errorf("failed to touch evidence: %w", err)
		}
		_ = bus.Emit(tx, "evidence.relinked", "", p.id, nil)
		res.Updated++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit re-resolution: %w", err)
	}
	return res, nil
}

// loadHintRows returns a record's hints in order along with their stored
// positions.
func (s *Service) loadHintRows(evidenceID string) ([]ParticipantHint, []int, error) {
	rows, err := s.db.Query(`
		SELECT position, display_name, is_organizer, is_verified, raw_email
		FROM evidence_hints
		WHERE evidence_id = ?
		ORDER BY position
	`, evidenceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query hints: %w", err)
	}
	defer rows.Close()

	var hints []ParticipantHint
	var positions []int
	for rows.Next() {
		var h ParticipantHint
		var pos, org, ver int
		var raw sql.NullString
		if err := rows.Scan(&pos, &h.DisplayName, &org, &ver, &raw); err != nil {
			return nil, nil, fmt.Errorf("failed to scan hint: %w", err)
		}
		h.IsOrganizer = org == 1
		h.IsVerified = ver == 1
		if raw.Valid {
			h.RawEmail = raw.String
		}
		hints = append(hints, h)
		positions = append(positions, pos)
	}
	return hints, positions, rows.Err()
}

func (s *Service) linkedIDs(evidenceID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT person_id FROM evidence_people WHERE evidence_id = ?
	`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked people: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan linked person id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// sameIDSet compares two id slices as sets.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
