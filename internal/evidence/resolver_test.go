package evidence

import (
	"testing"

	"github.com/carraway/dossier/internal/directory"
)

func testIndex(people []directory.Person, self *directory.Person) *directory.Index {
	return directory.BuildIndex(people, self)
}

func TestHintDisplayNameFallback(t *testing.T) {
	tests := []struct {
		name, email, expected string
	}{
		{"Sam Reyes", "sam@example.com", "Sam Reyes"},
		{"", "sam@example.com", "sam@example.com"},
		{"", "", "Unknown"},
	}
	for _, test := range tests {
		if got := hintDisplayName(test.name, test.email); got != test.expected {
			t.Errorf("hintDisplayName(%q, %q) = %q, want %q", test.name, test.email, got, test.expected)
		}
	}
}

func TestResolveEventParticipantsOrganizerMerge(t *testing.T) {
	idx := testIndex(nil, nil)

	attendees := []EventParticipant{
		{Name: "Ann", Email: "ann@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}
	organizer := &EventParticipant{Name: "Ann Q.", Email: "Ann@Example.com"}

	hints := resolveEventParticipants(idx, attendees, organizer)
	if len(hints) != 2 {
		t.Fatalf("organizer matching an attendee must merge, got %d hints", len(hints))
	}
	if !hints[0].IsOrganizer {
		t.Error("Ann's hint should carry the organizer flag")
	}
	if hints[1].IsOrganizer {
		t.Error("Bob should not be organizer")
	}
}

func TestResolveEventParticipantsOrganizerAppend(t *testing.T) {
	idx := testIndex(nil, nil)

	attendees := []EventParticipant{{Name: "Ann", Email: "ann@example.com"}}
	organizer := &EventParticipant{Name: "Zed", Email: "zed@example.com"}

	hints := resolveEventParticipants(idx, attendees, organizer)
	if len(hints) != 2 {
		t.Fatalf("unmatched organizer must append, got %d hints", len(hints))
	}
	last := hints[len(hints)-1]
	if !last.IsOrganizer || last.DisplayName != "Zed" {
		t.Errorf("appended organizer hint wrong: %+v", last)
	}
}

func TestVerifiedIndependentPerHint(t *testing.T) {
	known := directory.Person{ID: "p1", Name: "Ann", Emails: []string{"ann@example.com"}}
	idx := testIndex([]directory.Person{known}, nil)

	hints := resolveEventParticipants(idx, []EventParticipant{
		{Name: "Ann", Email: "ann@example.com"},
		{Name: "Stranger", Email: "who@else.test"},
	}, nil)

	if !hints[0].IsVerified {
		t.Error("known attendee should be verified")
	}
	if hints[1].IsVerified {
		t.Error("unknown attendee should not be verified")
	}
}

func TestSelfIsVerifiedWithoutBeingKnown(t *testing.T) {
	// meEmails is tracked separately from knownEmails; a self-only address
	// still verifies.
	self := directory.Person{ID: "me", Name: "Me", IsMe: true, Emails: []string{"me@self.test"}}
	idx := testIndex(nil, &self)

	hints := resolveMailParticipants(idx, "", "sender@x.test", []string{"me@self.test"})
	if hints[0].IsVerified {
		t.Error("unknown sender should not be verified")
	}
	if !hints[1].IsVerified {
		t.Error("self recipient should be verified via meEmails")
	}
}

func TestMailSenderAlwaysOrganizer(t *testing.T) {
	idx := testIndex(nil, nil)
	hints := resolveMailParticipants(idx, "Pat", "pat@x.test", []string{"q@y.test"})
	if !hints[0].IsOrganizer {
		t.Error("mail sender is unconditionally marked organizer")
	}
	if hints[0].DisplayName != "Pat" {
		t.Errorf("sender display name = %q", hints[0].DisplayName)
	}
	if hints[1].IsOrganizer {
		t.Error("recipient must not be organizer")
	}
}

func TestResolveHandleDispatch(t *testing.T) {
	ann := directory.Person{ID: "p1", Name: "Ann", Emails: []string{"ann@example.com"}, Phones: []string{"4155550100"}}
	idx := testIndex([]directory.Person{ann}, nil)

	hint, matches := resolveHandle(idx, "Ann@Example.com")
	if len(matches) != 1 || hint.DisplayName != "Ann" || !hint.IsVerified {
		t.Errorf("email handle resolution wrong: hint=%+v matches=%d", hint, len(matches))
	}

	hint, matches = resolveHandle(idx, "+1 415 555 0100")
	if len(matches) != 1 || hint.DisplayName != "Ann" || !hint.IsVerified {
		t.Errorf("phone handle resolution wrong: hint=%+v matches=%d", hint, len(matches))
	}
	if hint.RawEmail != "+1 415 555 0100" {
		t.Errorf("raw handle must be preserved on the hint, got %q", hint.RawEmail)
	}

	hint, matches = resolveHandle(idx, "555")
	if len(matches) != 0 || hint.IsVerified {
		t.Errorf("sub-7-digit handle must never match: hint=%+v matches=%d", hint, len(matches))
	}
	if hint.DisplayName != "555" {
		t.Errorf("unmatched handle falls back to the handle itself, got %q", hint.DisplayName)
	}
}

func TestLinkPeopleForHintsDedup(t *testing.T) {
	ann := directory.Person{ID: "p1", Name: "Ann", Emails: []string{"ann@example.com"}, Phones: []string{"4155550100"}}
	idx := testIndex([]directory.Person{ann}, nil)

	hints := []ParticipantHint{
		{DisplayName: "Ann", RawEmail: "Ann@Example.com"},
		{DisplayName: "Ann", RawEmail: "+14155550100"},
	}
	linked := linkPeopleForHints(idx, hints)
	if len(linked) != 1 || linked[0].ID != "p1" {
		t.Errorf("same person via email and phone should link once, got %+v", linked)
	}
}

func TestAppendExtraEmailHints(t *testing.T) {
	ann := directory.Person{ID: "p1", Name: "Ann", Emails: []string{"ann@example.com"}}
	idx := testIndex([]directory.Person{ann}, nil)

	hints := []ParticipantHint{{DisplayName: "Ann", RawEmail: "Ann@Example.com"}}
	out := appendExtraEmailHints(idx, hints, []string{"ann@example.com", "zed@other.test", ""})

	if len(out) != 2 {
		t.Fatalf("already-hinted and empty emails must be skipped, got %d hints", len(out))
	}
	extra := out[1]
	if extra.DisplayName != "zed@other.test" || extra.RawEmail != "zed@other.test" {
		t.Errorf("extra hint wrong: %+v", extra)
	}
	if extra.IsOrganizer || extra.IsVerified {
		t.Errorf("unknown extra participant must be a plain unverified hint: %+v", extra)
	}

	out = appendExtraEmailHints(idx, nil, []string{"ann@example.com"})
	if len(out) != 1 || !out[0].IsVerified {
		t.Errorf("known extra participant should verify: %+v", out)
	}
}
