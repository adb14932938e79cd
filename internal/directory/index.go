package directory

import (
	"database/sql"

	"github.com/carraway/dossier/internal/canonical"
)

// Index is a lookup structure built once per resolution pass from a full
// directory snapshot. It answers "is this email known", "is this email
// mine", and set-based email/phone matching against identity records.
//
// Phones are kept as per-person sets rather than a flattened global index;
// the canonical phone key is already lossy enough that per-record matching
// is the safer shape.
type Index struct {
	people      []Person
	knownEmails map[string]struct{}
	meEmails    map[string]struct{}
	emailSets   []map[string]struct{} // parallel to people
	phoneSets   []map[string]struct{} // parallel to people
}

// BuildIndex constructs an Index from a directory snapshot. The self person,
// when present, must be a member of people; its emails are tracked
// separately so "is me" stays independent of generic "known".
func BuildIndex(people []Person, self *Person) *Index {
	x := &Index{
		people:      people,
		knownEmails: make(map[string]struct{}),
		meEmails:    make(map[string]struct{}),
		emailSets:   make([]map[string]struct{}, len(people)),
		phoneSets:   make([]map[string]struct{}, len(people)),
	}
	for i, p := range people {
		emails := make(map[string]struct{}, len(p.Emails))
		for _, e := range p.Emails {
			key := canonical.Email(e)
			if key == "" {
				continue
			}
			emails[key] = struct{}{}
			x.knownEmails[key] = struct{}{}
		}
		x.emailSets[i] = emails

		phones := make(map[string]struct{}, len(p.Phones))
		for _, ph := range p.Phones {
			key := canonical.Phone(ph)
			if key == "" {
				continue
			}
			phones[key] = struct{}{}
		}
		x.phoneSets[i] = phones
	}
	if self != nil {
		for _, e := range self.Emails {
			key := canonical.Email(e)
			if key == "" {
				continue
			}
			x.meEmails[key] = struct{}{}
		}
	}
	return x
}

// LoadIndex reads the full directory through its authoritative accessor and
// builds a fresh Index. Callers start every resolution pass here.
func LoadIndex(db *sql.DB) (*Index, error) {
	people, err := All(db)
	if err != nil {
		return nil, err
	}
	self, err := Self(db)
	if err != nil {
		return nil, err
	}
	return BuildIndex(people, self), nil
}

// IsKnown reports whether the canonical email key belongs to any person.
func (x *Index) IsKnown(emailKey string) bool {
	if emailKey == "" {
		return false
	}
	_, ok := x.knownEmails[emailKey]
	return ok
}

// IsMe reports whether the canonical email key belongs to the self person.
func (x *Index) IsMe(emailKey string) bool {
	if emailKey == "" {
		return false
	}
	_, ok := x.meEmails[emailKey]
	return ok
}

// MatchByEmails returns every person with at least one email in keys,
// deduped, in directory order.
func (x *Index) MatchByEmails(keys []string) []Person {
	if len(keys) == 0 {
		return nil
	}
	var out []Person
	for i, p := range x.people {
		for _, k := range keys {
			if k == "" {
				continue
			}
			if _, ok := x.emailSets[i][k]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// MatchByPhones returns every person with at least one phone alias in keys,
// deduped, in directory order.
func (x *Index) MatchByPhones(keys []string) []Person {
	if len(keys) == 0 {
		return nil
	}
	var out []Person
	for i, p := range x.people {
		for _, k := range keys {
			if k == "" {
				continue
			}
			if _, ok := x.phoneSets[i][k]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
