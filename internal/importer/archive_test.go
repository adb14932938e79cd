package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/carraway/dossier/internal/db"
	"github.com/carraway/dossier/internal/evidence"
)

func testStore(t *testing.T) (*sql.DB, *evidence.Service) {
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
	return d, evidence.New(d)
}

func writeArchive(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestImportCalendarFile(t *testing.T) {
	_, svc := testStore(t)
	ctx := context.Background()

	path := writeArchive(t, "calendar.json", `{"events": [
		{"source_uid": "eventkit:E1", "title": "Standup", "start_date": "2026-08-20T09:00:00Z"},
		{"source_uid": "eventkit:E2", "title": "Review", "start_date": "2026-08-20T14:00:00Z"}
	]}`)

	res, err := ImportCalendarFile(ctx, svc, path, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Seen != 2 || res.Created != 2 || res.Updated != 0 {
		t.Errorf("first import counts wrong: %+v", res)
	}

	res, err = ImportCalendarFile(ctx, svc, path, false)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if res.Created != 0 || res.Updated != 2 {
		t.Errorf("reimport counts wrong: %+v", res)
	}
}

func TestImportCalendarFilePrunes(t *testing.T) {
	_, svc := testStore(t)
	ctx := context.Background()

	full := writeArchive(t, "full.json", `{"events": [
		{"source_uid": "eventkit:E1", "title": "Standup", "start_date": "2026-08-20T09:00:00Z"},
		{"source_uid": "eventkit:E2", "title": "Review", "start_date": "2026-08-20T14:00:00Z"}
	]}`)
	if _, err := ImportCalendarFile(ctx, svc, full, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// E2 disappeared upstream.
	shrunk := writeArchive(t, "shrunk.json", `{"events": [
		{"source_uid": "eventkit:E1", "title": "Standup", "start_date": "2026-08-20T09:00:00Z"}
	]}`)
	res, err := ImportCalendarFile(ctx, svc, shrunk, true)
	if err != nil {
		t.Fatalf("prune import: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", res.Pruned)
	}
	if rec, _ := svc.FetchBySourceUID(ctx, "eventkit:E2"); rec != nil {
		t.Error("E2 should be gone")
	}
	if rec, _ := svc.FetchBySourceUID(ctx, "eventkit:E1"); rec == nil {
		t.Error("E1 must survive")
	}
}

func TestImportMailFilePruneScopedToSenders(t *testing.T) {
	_, svc := testStore(t)
	ctx := context.Background()

	seed := writeArchive(t, "seed.json", `{"items": [
		{"email": {"source_uid": "gmail:x1", "subject": "a", "sender_email": "x@s.test", "date": "2026-08-20T09:00:00Z"}},
		{"email": {"source_uid": "gmail:y1", "subject": "b", "sender_email": "y@s.test", "date": "2026-08-20T09:05:00Z"}}
	]}`)
	if _, err := ImportMailFile(ctx, svc, seed, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The next export only covers sender x. x1 is gone from it, so x1 is
	// pruned; y1 is out of scope and survives.
	next := writeArchive(t, "next.json", `{"items": [
		{"email": {"source_uid": "gmail:x2", "subject": "c", "sender_email": "x@s.test", "date": "2026-08-21T09:00:00Z"}}
	]}`)
	res, err := ImportMailFile(ctx, svc, next, true)
	if err != nil {
		t.Fatalf("prune import: %v", err)
	}
	if res.Created != 1 || res.Pruned != 1 {
		t.Errorf("counts wrong: %+v", res)
	}
	if rec, _ := svc.FetchBySourceUID(ctx, "gmail:x1"); rec != nil {
		t.Error("x1 should be pruned")
	}
	if rec, _ := svc.FetchBySourceUID(ctx, "gmail:y1"); rec == nil {
		t.Error("y1 must survive scoped pruning")
	}
}

func TestImportMailFileCarriesAnalysis(t *testing.T) {
	_, svc := testStore(t)
	ctx := context.Background()

	path := writeArchive(t, "mail.json", `{"items": [
		{"email": {"source_uid": "gmail:z1", "subject": "plans", "sender_email": "z@s.test", "body_snippet": "secret text", "date": "2026-08-20T09:00:00Z"},
		 "analysis": {"summary": "Dinner plans for Friday",
		              "temporal_events": [{"description": "dinner Friday 7pm", "confidence": 0.9}]}}
	]}`)
	if _, err := ImportMailFile(ctx, svc, path, false); err != nil {
		t.Fatalf("import: %v", err)
	}

	rec, err := svc.FetchBySourceUID(ctx, "gmail:z1")
	if err != nil || rec == nil {
		t.Fatalf("fetch: rec=%v err=%v", rec, err)
	}
	if rec.Snippet != "Dinner plans for Friday" {
		t.Errorf("snippet should come from analysis summary, got %q", rec.Snippet)
	}
	if rec.BodyText != nil {
		t.Error("mail body must not be stored")
	}
	if len(rec.Signals) != 1 || rec.Signals[0].Kind != "temporal_event" {
		t.Errorf("signals wrong: %+v", rec.Signals)
	}
}

func TestImportCallsFile(t *testing.T) {
	_, svc := testStore(t)
	ctx := context.Background()

	path := writeArchive(t, "calls.json", `{"calls": [
		{"id": "c1", "address": "+14155550100", "date": "2026-08-20T09:00:00Z",
		 "duration": 323000000000, "was_answered": true, "is_outgoing": false, "is_facetime": false}
	]}`)
	res, err := ImportCallsFile(ctx, svc, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}

	recs, err := svc.FetchAll(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("fetch all: %d records, err %v", len(recs), err)
	}
	if recs[0].Source != evidence.SourcePhoneCall {
		t.Errorf("source = %s", recs[0].Source)
	}
	if recs[0].Snippet != "Lasted 5m 23s" {
		t.Errorf("snippet = %q", recs[0].Snippet)
	}
}

func TestImportBadArchive(t *testing.T) {
	_, svc := testStore(t)
	path := writeArchive(t, "bad.json", `{"events": [`)
	if _, err := ImportCalendarFile(context.Background(), svc, path, false); err == nil {
		t.Fatal("malformed archive must error")
	}
	if _, err := ImportCalendarFile(context.Background(), svc, filepath.Join(t.TempDir(), "missing.json"), false); err == nil {
		t.Fatal("missing archive must error")
	}
}

func TestImportContactsFileCreatesMergesAndRelinks(t *testing.T) {
	store, svc := testStore(t)
	ctx := context.Background()

	// Evidence imported before the contact exists stays unverified.
	mail := writeArchive(t, "mail.json", `{"items": [
		{"email": {"source_uid": "gmail:m1", "subject": "hi", "sender_email": "pat@s.test", "date": "2026-08-20T09:00:00Z"}}
	]}`)
	if _, err := ImportMailFile(ctx, svc, mail, false); err != nil {
		t.Fatalf("seed mail: %v", err)
	}

	contacts := writeArchive(t, "contacts.json", `{"contacts": [
		{"name": "Pat Doyle", "emails": ["Pat@S.Test"]}
	]}`)
	res, err := ImportContactsFile(ctx, store, svc, contacts)
	if err != nil {
		t.Fatalf("contacts import: %v", err)
	}
	if res.Created != 1 || res.Merged != 0 {
		t.Errorf("counts wrong: %+v", res)
	}
	if res.Relinked != 1 {
		t.Errorf("relinked = %d, want 1", res.Relinked)
	}

	rec, _ := svc.FetchBySourceUID(ctx, "gmail:m1")
	if !rec.ParticipantHints[0].IsVerified || len(rec.LinkedPeople) != 1 {
		t.Errorf("mail should link to Pat after contacts import: %+v", rec)
	}

	// Same card again with an extra alias merges, never duplicates.
	more := writeArchive(t, "more.json", `{"contacts": [
		{"name": "Pat Doyle", "emails": ["pat@s.test", "pd@other.test"], "phones": ["+1 415 555 0100"]}
	]}`)
	res, err = ImportContactsFile(ctx, store, svc, more)
	if err != nil {
		t.Fatalf("second contacts import: %v", err)
	}
	if res.Created != 0 || res.Merged != 1 {
		t.Errorf("merge counts wrong: %+v", res)
	}
}
