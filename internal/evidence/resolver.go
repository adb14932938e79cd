package evidence

import (
	"github.com/carraway/dossier/internal/canonical"
	"github.com/carraway/dossier/internal/directory"
)

// unknownParticipant is the display-name fallback of last resort.
const unknownParticipant = "Unknown"

// hintDisplayName falls back name -> email -> "Unknown".
func hintDisplayName(name, email string) string {
	if name != "" {
		return name
	}
	if email != "" {
		return email
	}
	return unknownParticipant
}

// verifyEmailKey computes a hint's verified flag from its canonical email
// key: the hint is verified when the key is mine or belongs to any known
// identity. Computed independently per hint.
func verifyEmailKey(idx *directory.Index, key string) bool {
	return idx.IsMe(key) || idx.IsKnown(key)
}

// verifyHandle recomputes a hint's verified flag from a raw handle,
// dispatching by handle shape: "@" means email-keyed, anything else
// phone-keyed. Exactly one path applies.
func verifyHandle(idx *directory.Index, raw string) bool {
	key, isEmail := canonical.Handle(raw)
	if key == "" {
		return false
	}
	if isEmail {
		return verifyEmailKey(idx, key)
	}
	return len(idx.MatchByPhones([]string{key})) > 0
}

// resolveEventParticipants builds the ordered hint list for a calendar
// event: one hint per attendee, then the organizer either merged onto a
// matching attendee hint or appended as its own hint.
func resolveEventParticipants(idx *directory.Index, attendees []EventParticipant, organizer *EventParticipant) []ParticipantHint {
	hints := make([]ParticipantHint, 0, len(attendees)+1)
	for _, a := range attendees {
		key := canonical.Email(a.Email)
		hints = append(hints, ParticipantHint{
			DisplayName: hintDisplayName(a.Name, a.Email),
			IsVerified:  verifyEmailKey(idx, key),
			RawEmail:    a.Email,
		})
	}

	if organizer != nil && (organizer.Email != "" || organizer.Name != "") {
		orgKey := canonical.Email(organizer.Email)
		merged := false
		if orgKey != "" {
			for i := range hints {
				if canonical.Email(hints[i].RawEmail) == orgKey {
					hints[i].IsOrganizer = true
					merged = true
					break
				}
			}
		}
		if !merged {
			hints = append(hints, ParticipantHint{
				DisplayName: hintDisplayName(organizer.Name, organizer.Email),
				IsOrganizer: true,
				IsVerified:  verifyEmailKey(idx, orgKey),
				RawEmail:    organizer.Email,
			})
		}
	}
	return hints
}

// resolveMailParticipants builds the ordered hint list for an email. The
// sender comes first and is unconditionally marked organizer; the label is
// reused to mean "initiator", not an organizing role.
func resolveMailParticipants(idx *directory.Index, senderName, senderEmail string, recipients []string) []ParticipantHint {
	hints := make([]ParticipantHint, 0, len(recipients)+1)
	hints = append(hints, ParticipantHint{
		DisplayName: hintDisplayName(senderName, senderEmail),
		IsOrganizer: true,
		IsVerified:  verifyEmailKey(idx, canonical.Email(senderEmail)),
		RawEmail:    senderEmail,
	})
	for _, r := range recipients {
		if r == "" {
			continue
		}
		hints = append(hints, ParticipantHint{
			DisplayName: hintDisplayName("", r),
			IsVerified:  verifyEmailKey(idx, canonical.Email(r)),
			RawEmail:    r,
		})
	}
	return hints
}

// resolveHandle resolves one call/message handle into a hint plus the
// matching identity records. The raw handle is preserved on the hint so a
// later re-resolution can re-dispatch it.
func resolveHandle(idx *directory.Index, handle string) (ParticipantHint, []directory.Person) {
	key, isEmail := canonical.Handle(handle)

	var matches []directory.Person
	if key != "" {
		if isEmail {
			matches = idx.MatchByEmails([]string{key})
		} else {
			matches = idx.MatchByPhones([]string{key})
		}
	}

	display := handle
	if len(matches) > 0 && matches[0].Name != "" {
		display = matches[0].Name
	}
	if display == "" {
		display = unknownParticipant
	}

	verified := false
	if isEmail {
		verified = verifyEmailKey(idx, key)
	} else {
		verified = len(matches) > 0
	}

	return ParticipantHint{
		DisplayName: display,
		IsVerified:  verified,
		RawEmail:    handle,
	}, matches
}

// appendExtraEmailHints extends a hint list with one hint per extra
// participant email not already covered by an email-shaped hint. Persisting
// the extras as hints means the stored hints fully determine the linked
// identity set, so a later re-resolution reproduces it.
func appendExtraEmailHints(idx *directory.Index, hints []ParticipantHint, extraEmails []string) []ParticipantHint {
	if len(extraEmails) == 0 {
		return hints
	}
	seen := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		key, isEmail := canonical.Handle(h.RawEmail)
		if isEmail && key != "" {
			seen[key] = struct{}{}
		}
	}
	for _, e := range extraEmails {
		key := canonical.Email(e)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		hints = append(hints, ParticipantHint{
			DisplayName: hintDisplayName("", e),
			IsVerified:  verifyEmailKey(idx, key),
			RawEmail:    e,
		})
	}
	return hints
}

// linkPeopleForHints recomputes the resolved identity set from a hint list,
// dispatching each raw handle by shape. The hints alone determine the set;
// merge and re-resolution both link through here and agree. Order follows
// the directory snapshot; ids are deduped.
func linkPeopleForHints(idx *directory.Index, hints []ParticipantHint) []directory.Person {
	var emailKeys, phoneKeys []string
	for _, h := range hints {
		if h.RawEmail == "" {
			continue
		}
		key, isEmail := canonical.Handle(h.RawEmail)
		if key == "" {
			continue
		}
		if isEmail {
			emailKeys = append(emailKeys, key)
		} else {
			phoneKeys = append(phoneKeys, key)
		}
	}

	seen := make(map[string]struct{})
	var out []directory.Person
	for _, p := range idx.MatchByEmails(emailKeys) {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, p := range idx.MatchByPhones(phoneKeys) {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func personIDs(people []directory.Person) []string {
	ids := make([]string, 0, len(people))
	for _, p := range people {
		ids = append(ids, p.ID)
	}
	return ids
}
