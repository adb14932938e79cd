package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carraway/dossier/internal/bus"
	"github.com/carraway/dossier/internal/directory"
)

// appleEpoch is 2001-01-01 UTC, the reference date used when folding a call
// date into its dedup key. Call-log ids are not stable across days, so the
// date has to participate in the key.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

func referenceSeconds(t time.Time) int64 {
	return int64(t.UTC().Sub(appleEpoch).Seconds())
}

// derived holds every field the merge engine owns on a record. Triage state
// and any higher-level annotation stay outside this struct and are never
// written by an upsert of an existing record.
type derived struct {
	SourceUID  string
	Source     Source
	OccurredAt time.Time
	EndedAt    *time.Time
	Title      string
	Snippet    string
	BodyText   *string
	Hints      []ParticipantHint
	Signals    []Signal
	PersonIDs  []string
}

// upsertDerived inserts or replace-updates one record inside tx. Returns
// whether a new record was created.
func upsertDerived(tx *sql.Tx, d derived) (created bool, err error) {
	if bodyRedacted(d.Source) {
		d.BodyText = nil
	}

	var endedAt any
	if d.EndedAt != nil {
		endedAt = d.EndedAt.Unix()
	}
	var bodyText any
	if d.BodyText != nil {
		bodyText = *d.BodyText
	}
	now := time.Now().Unix()

	var id string
	err = tx.QueryRow(`SELECT id FROM evidence WHERE source_uid = ?`, d.SourceUID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		_, err = tx.Exec(`
			INSERT INTO evidence (id, state, source_uid, source, occurred_at, ended_at,
			                      title, snippet, body_text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, string(StateNeedsReview), d.SourceUID, string(d.Source), d.OccurredAt.Unix(),
			endedAt, d.Title, d.Snippet, bodyText, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert evidence: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("failed to look up evidence by source uid: %w", err)
	default:
		// Replace only the derived fields; state is reviewer-owned.
		_, err = tx.Exec(`
			UPDATE evidence
			SET source = ?, occurred_at = ?, ended_at = ?,
			    title = ?, snippet = ?, body_text = ?, updated_at = ?
			WHERE id = ?
		`, string(d.Source), d.OccurredAt.Unix(), endedAt,
			d.Title, d.Snippet, bodyText, now, id)
		if err != nil {
			return false, fmt.Errorf("failed to update evidence: %w", err)
		}
	}

	if err := replaceHints(tx, id, d.Hints); err != nil {
		return false, err
	}
	if err := replaceSignals(tx, id, d.Signals); err != nil {
		return false, err
	}
	if err := relinkPeople(tx, id, d.PersonIDs); err != nil {
		return false, err
	}

	typ := "evidence.updated"
	if created {
		typ = "evidence.created"
	}
	_ = bus.Emit(tx, typ, string(d.Source), id, map[string]any{
		"source_uid": d.SourceUID,
	})
	return created, nil
}

// runBatch wraps the shared batch shape: fresh directory index, one
// transaction, a cooperative cancellation check between items, one commit.
func (s *Service) runBatch(ctx context.Context, n int, item func(tx *sql.Tx, idx *directory.Index, i int) (bool, bool, error)) (BatchResult, error) {
	var res BatchResult
	if err := s.ready(); err != nil {
		return res, err
	}

	// The directory is read through its authoritative accessor at the start
	// of every pass; snapshots are never reused across passes.
	idx, err := directory.LoadIndex(s.db)
	if err != nil {
		return res, fmt.Errorf("failed to load identity directory: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		skipped, created, err := item(tx, idx, i)
		if err != nil {
			return res, err
		}
		if skipped {
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

// BulkUpsertCalendar reconciles a batch of calendar events, committing once.
func (s *Service) BulkUpsertCalendar(ctx context.Context, dtos []EventDTO) (BatchResult, error) {
	return s.runBatch(ctx, len(dtos), func(tx *sql.Tx, idx *directory.Index, i int) (bool, bool, error) {
		dto := dtos[i]
		if strings.TrimSpace(dto.SourceUID) == "" {
			return true, false, nil
		}
		created, err := upsertDerived(tx, calendarDerived(idx, dto))
		return false, created, err
	})
}

// UpsertCalendarEvent reconciles a single calendar event.
func (s *Service) UpsertCalendarEvent(ctx context.Context, dto EventDTO) (bool, error) {
	res, err := s.BulkUpsertCalendar(ctx, []EventDTO{dto})
	return res.Created > 0, err
}

func calendarDerived(idx *directory.Index, dto EventDTO) derived {
	title := dto.Title
	if title == "" {
		title = "Untitled Event"
	}
	snippet := dto.Location
	if snippet == "" {
		snippet = dto.Notes
	}

	hints := resolveEventParticipants(idx, dto.Attendees, dto.Organizer)
	hints = appendExtraEmailHints(idx, hints, dto.ParticipantEmails)
	linked := linkPeopleForHints(idx, hints)

	return derived{
		SourceUID:  dto.SourceUID,
		Source:     SourceCalendar,
		OccurredAt: dto.StartDate,
		EndedAt:    dto.EndDate,
		Title:      title,
		Snippet:    snippet,
		Hints:      hints,
		PersonIDs:  personIDs(linked),
	}
}

// BulkUpsertMail reconciles a batch of (email, optional analysis) pairs,
// committing once. Mail bodies never reach the store.
func (s *Service) BulkUpsertMail(ctx context.Context, items []MailItem) (BatchResult, error) {
	return s.runBatch(ctx, len(items), func(tx *sql.Tx, idx *directory.Index, i int) (bool, bool, error) {
		dto := items[i].Email
		if strings.TrimSpace(dto.SourceUID) == "" {
			return true, false, nil
		}
		created, err := upsertDerived(tx, mailDerived(idx, dto, items[i].Analysis))
		return false, created, err
	})
}

// UpsertMail reconciles a single email.
func (s *Service) UpsertMail(ctx context.Context, dto EmailDTO, analysis *EmailAnalysisDTO) (bool, error) {
	res, err := s.BulkUpsertMail(ctx, []MailItem{{Email: dto, Analysis: analysis}})
	return res.Created > 0, err
}

func mailDerived(idx *directory.Index, dto EmailDTO, analysis *EmailAnalysisDTO) derived {
	snippet := ""
	if analysis != nil && analysis.Summary != "" {
		snippet = analysis.Summary
	} else {
		snippet = excerpt(dto.BodySnippet, 200)
	}

	hints := resolveMailParticipants(idx, dto.SenderName, dto.SenderEmail, dto.RecipientEmails)
	hints = appendExtraEmailHints(idx, hints, dto.AllParticipantEmails)
	linked := linkPeopleForHints(idx, hints)

	return derived{
		SourceUID:  dto.SourceUID,
		Source:     SourceMail,
		OccurredAt: dto.Date,
		Title:      dto.Subject,
		Snippet:    snippet,
		Hints:      hints,
		Signals:    mailSignals(analysis),
		PersonIDs:  personIDs(linked),
	}
}

// BulkUpsertMessages reconciles a batch of (message, optional analysis)
// pairs, committing once. Message bodies never reach the store.
func (s *Service) BulkUpsertMessages(ctx context.Context, items []MessageItem) (BatchResult, error) {
	return s.runBatch(ctx, len(items), func(tx *sql.Tx, idx *directory.Index, i int) (bool, bool, error) {
		dto := items[i].Message
		if strings.TrimSpace(dto.GUID) == "" {
			return true, false, nil
		}
		created, err := upsertDerived(tx, messageDerived(idx, dto, items[i].Analysis))
		return false, created, err
	})
}

// UpsertMessage reconciles a single message.
func (s *Service) UpsertMessage(ctx context.Context, dto MessageDTO, analysis *MessageAnalysisDTO) (bool, error) {
	res, err := s.BulkUpsertMessages(ctx, []MessageItem{{Message: dto, Analysis: analysis}})
	return res.Created > 0, err
}

func messageDerived(idx *directory.Index, dto MessageDTO, analysis *MessageAnalysisDTO) derived {
	hint, matches := resolveHandle(idx, dto.HandleID)
	var hints []ParticipantHint
	if dto.HandleID != "" {
		hints = []ParticipantHint{hint}
	}

	// Title comes from the resolved identity, never from source content.
	title := "Text Message"
	if len(matches) > 0 && matches[0].Name != "" {
		if dto.IsFromMe {
			title = "Message to " + matches[0].Name
		} else {
			title = "Message from " + matches[0].Name
		}
	}

	snippet := ""
	switch {
	case analysis != nil && analysis.Summary != "":
		snippet = analysis.Summary
	case dto.Text != "":
		snippet = excerpt(dto.Text, 200)
	case dto.HasAttachment:
		snippet = "[Attachment]"
	default:
		snippet = "[No text]"
	}

	return derived{
		SourceUID:  "imessage:" + dto.GUID,
		Source:     SourceIMessage,
		OccurredAt: dto.Date,
		Title:      title,
		Snippet:    snippet,
		Hints:      hints,
		Signals:    messageSignals(analysis),
		PersonIDs:  personIDs(matches),
	}
}

// BulkUpsertCalls reconciles a batch of call records, committing once.
func (s *Service) BulkUpsertCalls(ctx context.Context, dtos []CallRecordDTO) (BatchResult, error) {
	return s.runBatch(ctx, len(dtos), func(tx *sql.Tx, idx *directory.Index, i int) (bool, bool, error) {
		dto := dtos[i]
		if strings.TrimSpace(dto.ID) == "" {
			return true, false, nil
		}
		created, err := upsertDerived(tx, callDerived(idx, dto))
		return false, created, err
	})
}

// UpsertCall reconciles a single call record.
func (s *Service) UpsertCall(ctx context.Context, dto CallRecordDTO) (bool, error) {
	res, err := s.BulkUpsertCalls(ctx, []CallRecordDTO{dto})
	return res.Created > 0, err
}

func callDerived(idx *directory.Index, dto CallRecordDTO) derived {
	source := SourcePhoneCall
	kind := "Call"
	if dto.IsFaceTime {
		source = SourceFaceTime
		kind = "FaceTime"
	}

	// Title and snippet are synthesized purely from call metadata.
	var title string
	switch {
	case !dto.WasAnswered && !dto.IsOutgoing:
		title = "Missed " + kind
	case dto.IsOutgoing:
		title = "Outgoing " + kind
	default:
		title = "Incoming " + kind
	}

	var snippet string
	switch {
	case dto.WasAnswered && dto.Duration > 0:
		snippet = "Lasted " + formatCallDuration(dto.Duration)
	case dto.IsOutgoing:
		snippet = "No answer"
	default:
		snippet = "Not answered"
	}

	var hints []ParticipantHint
	var matches []directory.Person
	if dto.Address != "" {
		hint, m := resolveHandle(idx, dto.Address)
		hints = []ParticipantHint{hint}
		matches = m
	}

	var endedAt *time.Time
	if dto.WasAnswered && dto.Duration > 0 {
		t := dto.Date.Add(dto.Duration)
		endedAt = &t
	}

	return derived{
		SourceUID:  fmt.Sprintf("call:%s:%d", dto.ID, referenceSeconds(dto.Date)),
		Source:     source,
		OccurredAt: dto.Date,
		EndedAt:    endedAt,
		Title:      title,
		Snippet:    snippet,
		Hints:      hints,
		PersonIDs:  personIDs(matches),
	}
}

func mailSignals(analysis *EmailAnalysisDTO) []Signal {
	if analysis == nil {
		return nil
	}
	var out []Signal
	for _, ev := range analysis.TemporalEvents {
		msg := ev.Description
		if ev.DateString != "" {
			msg = fmt.Sprintf("%s (%s)", ev.Description, ev.DateString)
		}
		out = append(out, Signal{Kind: "temporal_event", Message: msg, Confidence: ev.Confidence})
	}
	for _, ent := range analysis.NamedEntities {
		msg := ent.Name
		if ent.Kind != "" {
			msg = fmt.Sprintf("%s: %s", ent.Kind, ent.Name)
		}
		out = append(out, Signal{Kind: "named_entity", Message: msg, Confidence: ent.Confidence})
	}
	return out
}

func messageSignals(analysis *MessageAnalysisDTO) []Signal {
	if analysis == nil {
		return nil
	}
	var out []Signal
	for _, ev := range analysis.TemporalEvents {
		msg := ev.Description
		if ev.DateString != "" {
			msg = fmt.Sprintf("%s (%s)", ev.Description, ev.DateString)
		}
		out = append(out, Signal{Kind: "temporal_event", Message: msg, Confidence: ev.Confidence})
	}
	return out
}

// excerpt truncates s to at most n runes.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func formatCallDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
