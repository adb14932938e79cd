package directory

import (
	"database/sql"
	"testing"

	"github.com/carraway/dossier/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	t.Setenv("DOSSIER_DATA_DIR", t.TempDir())
	if err := db.Init(); err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	d, err := db.Open()
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreateCanonicalizesAliases(t *testing.T) {
	d := testDB(t)

	id, err := Create(d, "Ann Ono", false, []string{"  Ann@Example.COM ", "not-an-email-is-kept-as-is@x"}, []string{"+1 (415) 555-0100", "123"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, err := Get(d, id)
	if err != nil || p == nil {
		t.Fatalf("Get: p=%v err=%v", p, err)
	}
	if len(p.Emails) != 2 || p.Emails[0] != "ann@example.com" {
		t.Errorf("emails = %v", p.Emails)
	}
	if len(p.Phones) != 1 || p.Phones[0] != "4155550100" {
		t.Errorf("short phone must be dropped, got %v", p.Phones)
	}
	if p.PrimaryEmail() != "ann@example.com" {
		t.Errorf("primary = %q", p.PrimaryEmail())
	}
}

func TestOnlyOneSelf(t *testing.T) {
	d := testDB(t)

	first, err := Create(d, "Old Me", true, []string{"old@me.test"}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := Create(d, "New Me", true, []string{"new@me.test"}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	self, err := Self(d)
	if err != nil || self == nil {
		t.Fatalf("Self: %v", err)
	}
	if self.ID != second {
		t.Errorf("self = %s, want %s", self.ID, second)
	}
	old, _ := Get(d, first)
	if old.IsMe {
		t.Error("previous self must be demoted")
	}
}

func TestSetSelfUpdatesInPlace(t *testing.T) {
	d := testDB(t)

	id1, err := SetSelf(d, "Me", []string{"me@a.test"}, nil)
	if err != nil {
		t.Fatalf("SetSelf: %v", err)
	}
	id2, err := SetSelf(d, "Me Renamed", []string{"me@b.test"}, []string{"+14155550100"})
	if err != nil {
		t.Fatalf("second SetSelf: %v", err)
	}
	if id1 != id2 {
		t.Errorf("SetSelf must reuse the existing self record (%s vs %s)", id1, id2)
	}

	self, _ := Self(d)
	if self.Name != "Me Renamed" {
		t.Errorf("name = %q", self.Name)
	}
	found := false
	for _, e := range self.Emails {
		if e == "me@b.test" {
			found = true
		}
	}
	if !found {
		t.Errorf("new alias missing: %v", self.Emails)
	}
}

func TestRemoveMissingPerson(t *testing.T) {
	d := testDB(t)
	if err := Remove(d, "no-such-id"); err == nil {
		t.Fatal("removing a missing person must error")
	}
}

func TestIndexMatching(t *testing.T) {
	ann := Person{ID: "p1", Name: "Ann", Emails: []string{"ann@example.com"}, Phones: []string{"4155550100"}}
	bob := Person{ID: "p2", Name: "Bob", Emails: []string{"bob@example.com"}}
	self := Person{ID: "me", Name: "Me", IsMe: true, Emails: []string{"me@self.test"}}

	idx := BuildIndex([]Person{ann, bob, self}, &self)

	if !idx.IsKnown("ann@example.com") || idx.IsKnown("stranger@x.test") {
		t.Error("IsKnown wrong")
	}
	if !idx.IsMe("me@self.test") || idx.IsMe("ann@example.com") {
		t.Error("IsMe wrong")
	}
	if idx.IsKnown("") || idx.IsMe("") {
		t.Error("empty key matches nothing")
	}

	got := idx.MatchByEmails([]string{"bob@example.com", "ann@example.com"})
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Errorf("email matches must come back in directory order, got %v", got)
	}

	got = idx.MatchByPhones([]string{"4155550100"})
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("phone match wrong: %v", got)
	}
	if idx.MatchByPhones(nil) != nil {
		t.Error("no keys, no matches")
	}
}

func TestLoadIndexReflectsDirectory(t *testing.T) {
	d := testDB(t)

	if _, err := Create(d, "Ann", false, []string{"ann@example.com"}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	idx, err := LoadIndex(d)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if !idx.IsKnown("ann@example.com") {
		t.Error("index should see the stored person")
	}
}
