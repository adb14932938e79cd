package importer

import (
	"context"
	"database/sql"
	"time"

	"github.com/carraway/dossier/internal/canonical"
	"github.com/carraway/dossier/internal/directory"
	"github.com/carraway/dossier/internal/evidence"
)

// ContactsArchive is the on-disk shape of a contacts export.
type ContactsArchive struct {
	Contacts []ContactEntry `json:"contacts"`
}

// ContactEntry is one exported contact card.
type ContactEntry struct {
	Name   string   `json:"name"`
	IsMe   bool     `json:"is_me,omitempty"`
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

// ContactsResult reports what a contacts import did.
type ContactsResult struct {
	Seen     int           `json:"seen"`
	Created  int           `json:"created"`
	Merged   int           `json:"merged"`
	Relinked int           `json:"relinked"`
	Duration time.Duration `json:"duration"`
}

// ImportContactsFile loads a contacts export into the identity directory and
// then re-resolves stored evidence against the changed directory. Entries
// matching an existing person by name merge their aliases into that person
// instead of creating a duplicate.
func ImportContactsFile(ctx context.Context, store *sql.DB, svc *evidence.Service, path string) (ContactsResult, error) {
	start := time.Now()
	var out ContactsResult

	var arch ContactsArchive
	if err := readArchive(path, &arch); err != nil {
		return out, err
	}
	out.Seen = len(arch.Contacts)

	for _, c := range arch.Contacts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if c.Name == "" {
			continue
		}
		existing, err := directory.GetByName(store, c.Name)
		if err != nil {
			return out, err
		}
		if existing == nil {
			if _, err := directory.Create(store, c.Name, c.IsMe, c.Emails, c.Phones); err != nil {
				return out, err
			}
			out.Created++
			continue
		}
		for _, e := range c.Emails {
			if canonical.Email(e) == "" {
				continue
			}
			if err := directory.AddEmail(store, existing.ID, e); err != nil {
				return out, err
			}
		}
		for _, p := range c.Phones {
			if canonical.Phone(p) == "" {
				continue
			}
			if err := directory.AddPhone(store, existing.ID, p); err != nil {
				return out, err
			}
		}
		out.Merged++
	}

	res, err := svc.RefreshParticipantResolution(ctx)
	if err != nil {
		return out, err
	}
	out.Relinked = res.Updated

	out.Duration = time.Since(start)
	return out, nil
}
