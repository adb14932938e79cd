package evidence

import "time"

// Source identifies where a piece of evidence was observed.
type Source string

const (
	SourceCalendar  Source = "calendar"
	SourceMail      Source = "mail"
	SourceIMessage  Source = "iMessage"
	SourcePhoneCall Source = "phoneCall"
	SourceFaceTime  Source = "faceTime"
	SourceContacts  Source = "contacts"
	SourceNote      Source = "note"
	SourceManual    Source = "manual"
)

// State is the triage state of a record. It belongs to the reviewer, not to
// the merge engine: imports never touch it.
type State string

const (
	StateNeedsReview State = "needsReview"
	StateDone        State = "done"
)

// ParticipantHint is one resolved participant slot on a record. Hints are
// positional within their parent's list and carry no independent id.
type ParticipantHint struct {
	DisplayName string
	IsOrganizer bool
	IsVerified  bool
	// RawEmail holds the participant's raw address or handle; phone handles
	// land here too so re-resolution can re-dispatch them later.
	RawEmail string
}

// Signal is one piece of extracted analysis attached to a record.
type Signal struct {
	Kind       string
	Message    string
	Confidence float64
}

// LinkedPerson is a resolved directory identity attached to a record.
type LinkedPerson struct {
	ID   string
	Name string
}

// Record is one reconciled unit of observed interaction. SourceUID is the
// sole dedup key: two imports producing the same SourceUID always update
// the same record.
type Record struct {
	ID         string
	State      State
	SourceUID  string
	Source     Source
	OccurredAt time.Time
	EndedAt    *time.Time
	Title      string
	Snippet    string
	// BodyText is always nil for mail and iMessage records.
	BodyText         *string
	ParticipantHints []ParticipantHint
	Signals          []Signal
	LinkedPeople     []LinkedPerson
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveEnd returns when the interaction ended, assuming a default
// one-hour duration when no end time was recorded.
func (r Record) EffectiveEnd() time.Time {
	if r.EndedAt != nil {
		return *r.EndedAt
	}
	return r.OccurredAt.Add(time.Hour)
}

// EventParticipant is one raw attendee on a calendar event.
type EventParticipant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// EventDTO is a normalized calendar event from an upstream integration.
// SourceUID is caller-supplied in the form "eventkit:<nativeEventID>".
type EventDTO struct {
	SourceUID         string             `json:"source_uid"`
	Title             string             `json:"title"`
	Location          string             `json:"location,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           *time.Time         `json:"end_date,omitempty"`
	Organizer         *EventParticipant  `json:"organizer,omitempty"`
	Attendees         []EventParticipant `json:"attendees,omitempty"`
	ParticipantEmails []string           `json:"participant_emails,omitempty"`
}

// EmailDTO is a normalized email message. SourceUID is DTO-supplied.
type EmailDTO struct {
	SourceUID            string    `json:"source_uid"`
	Subject              string    `json:"subject"`
	SenderName           string    `json:"sender_name,omitempty"`
	SenderEmail          string    `json:"sender_email"`
	RecipientEmails      []string  `json:"recipient_emails,omitempty"`
	BodySnippet          string    `json:"body_snippet,omitempty"`
	Date                 time.Time `json:"date"`
	AllParticipantEmails []string  `json:"all_participant_emails,omitempty"`
}

// TemporalEvent is one time-referencing statement extracted by analysis.
type TemporalEvent struct {
	Description string  `json:"description"`
	DateString  string  `json:"date_string,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// NamedEntity is one entity extracted by analysis.
type NamedEntity struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// EmailAnalysisDTO is an opaque analysis result for one email, consumed
// verbatim from the summarization service.
type EmailAnalysisDTO struct {
	Summary        string          `json:"summary,omitempty"`
	TemporalEvents []TemporalEvent `json:"temporal_events,omitempty"`
	NamedEntities  []NamedEntity   `json:"named_entities,omitempty"`
}

// MessageDTO is one normalized iMessage.
type MessageDTO struct {
	GUID          string    `json:"guid"`
	HandleID      string    `json:"handle_id"`
	Text          string    `json:"text,omitempty"`
	HasAttachment bool      `json:"has_attachment"`
	IsFromMe      bool      `json:"is_from_me"`
	Date          time.Time `json:"date"`
}

// MessageAnalysisDTO is an opaque analysis result for one message.
type MessageAnalysisDTO struct {
	Summary        string          `json:"summary,omitempty"`
	TemporalEvents []TemporalEvent `json:"temporal_events,omitempty"`
}

// CallRecordDTO is one normalized phone or FaceTime call.
type CallRecordDTO struct {
	ID          string        `json:"id"`
	Address     string        `json:"address"`
	Date        time.Time     `json:"date"`
	Duration    time.Duration `json:"duration"`
	WasAnswered bool          `json:"was_answered"`
	IsOutgoing  bool          `json:"is_outgoing"`
	IsFaceTime  bool          `json:"is_facetime"`
}

// MailItem pairs an email with its optional analysis for batch upsert.
type MailItem struct {
	Email    EmailDTO          `json:"email"`
	Analysis *EmailAnalysisDTO `json:"analysis,omitempty"`
}

// MessageItem pairs a message with its optional analysis for batch upsert.
type MessageItem struct {
	Message  MessageDTO          `json:"message"`
	Analysis *MessageAnalysisDTO `json:"analysis,omitempty"`
}

// BatchResult reports what a bulk upsert did.
type BatchResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// RefreshResult reports what a re-resolution pass did.
type RefreshResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}
