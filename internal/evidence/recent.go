package evidence

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultRecentWindow is the maximum lookback used by FindRecentMeeting
// when the caller passes a non-positive window.
const DefaultRecentWindow = 2 * time.Hour

// FindRecentMeeting returns the most recent non-superseded calendar record
// linked to a person.
//
// A candidate is a linked calendar record that has started and whose
// effective end (endedAt, or occurredAt plus an assumed one-hour duration)
// is no older than the window; a still-running meeting qualifies. A
// candidate is superseded when another linked calendar record has already
// started strictly after the candidate's effective end. Candidates are
// ordered by effective end descending before the supersession filter, which
// fixes the tie-break when several unsuperseded candidates exist.
func (s *Service) FindRecentMeeting(ctx context.Context, personID string, now time.Time, window time.Duration) (*Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultRecentWindow
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.state, e.source_uid, e.source, e.occurred_at, e.ended_at,
		       e.title, e.snippet, e.body_text, e.created_at, e.updated_at
		FROM evidence e
		JOIN evidence_people ep ON ep.evidence_id = e.id
		WHERE ep.person_id = ? AND e.source = ?
		ORDER BY e.occurred_at DESC, e.id
	`, personID, string(SourceCalendar))
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating meetings: %w", err)
	}

	cutoff := now.Add(-window)
	var candidates []Record
	for _, m := range meetings {
		if m.OccurredAt.After(now) {
			continue
		}
		if m.EffectiveEnd().Before(cutoff) {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EffectiveEnd().After(candidates[j].EffectiveEnd())
	})

	for _, cand := range candidates {
		if !supersededBy(meetings, cand, now) {
			r := cand
			if err := s.loadChildren(&r); err != nil {
				return nil, err
			}
			return &r, nil
		}
	}
	return nil, nil
}

// supersededBy reports whether another already-started meeting begins
// strictly after cand's effective end.
func supersededBy(meetings []Record, cand Record, now time.Time) bool {
	end := cand.EffectiveEnd()
	for _, other := range meetings {
		if other.ID == cand.ID {
			continue
		}
		if other.OccurredAt.After(now) {
			continue
		}
		if other.OccurredAt.After(end) {
			return true
		}
	}
	return false
}
