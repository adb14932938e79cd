package evidence

import (
	"context"
	"testing"
	"time"
)

func TestPruneDeletesExactlyTheOrphans(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	_, err := s.BulkUpsertCalendar(ctx, []EventDTO{
		{SourceUID: "eventkit:A", Title: "A", StartDate: time.Now()},
		{SourceUID: "eventkit:B", Title: "B", StartDate: time.Now()},
		{SourceUID: "eventkit:C", Title: "C", StartDate: time.Now()},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Mark A reviewed so we can check pruning leaves survivors untouched.
	a, _ := s.FetchBySourceUID(ctx, "eventkit:A")
	if err := s.MarkAsReviewed(ctx, a.ID); err != nil {
		t.Fatalf("MarkAsReviewed: %v", err)
	}

	deleted, err := s.PruneOrphans(ctx, SourceCalendar, []string{"eventkit:A", "eventkit:C"}, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if b, _ := s.FetchBySourceUID(ctx, "eventkit:B"); b != nil {
		t.Error("B should have been pruned")
	}
	a, _ = s.FetchBySourceUID(ctx, "eventkit:A")
	if a == nil || a.State != StateDone {
		t.Errorf("A must survive with its state intact, got %+v", a)
	}
	if c, _ := s.FetchBySourceUID(ctx, "eventkit:C"); c == nil {
		t.Error("C must survive")
	}
}

func TestPruneScopedToSenders(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	_, err := s.BulkUpsertMail(ctx, []MailItem{
		{Email: EmailDTO{SourceUID: "gmail:x1", Subject: "from x", SenderEmail: "x@senders.test", Date: time.Now()}},
		{Email: EmailDTO{SourceUID: "gmail:y1", Subject: "from y", SenderEmail: "y@senders.test", Date: time.Now()}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Both are absent from the live set, but only x is a recognized sender:
	// y's absence may be upstream filtering, not deletion.
	deleted, err := s.PruneOrphans(ctx, SourceMail, nil, []string{"X@Senders.Test"})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if x, _ := s.FetchBySourceUID(ctx, "gmail:x1"); x != nil {
		t.Error("x's record should have been pruned")
	}
	if y, _ := s.FetchBySourceUID(ctx, "gmail:y1"); y == nil {
		t.Error("y's record must survive scoped pruning")
	}
}

func TestPruneIgnoresOtherSources(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	if _, err := s.UpsertMessage(ctx, MessageDTO{GUID: "m1", HandleID: "z@z.test", Text: "hi", Date: time.Now()}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := s.PruneOrphans(ctx, SourceCalendar, nil, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("pruning calendar must not touch iMessage records, deleted %d", deleted)
	}
	if m, _ := s.FetchBySourceUID(ctx, "imessage:m1"); m == nil {
		t.Error("message record should survive")
	}
}

func TestPruneNothingToDo(t *testing.T) {
	s, _ := testService(t)
	deleted, err := s.PruneOrphans(context.Background(), SourceMail, []string{"gmail:whatever"}, nil)
	if err != nil {
		t.Fatalf("prune on empty store must not error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}
