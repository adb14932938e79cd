package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/carraway/dossier/internal/canonical"
	"github.com/carraway/dossier/internal/evidence"
)

// Archive importers consume JSON files produced by the upstream extraction
// pipeline. Each file is self-contained: the set of items it carries is the
// live set for its source, so an import can optionally prune records the
// upstream no longer reports.

// CalendarArchive is the on-disk shape of a calendar export.
type CalendarArchive struct {
	Events []evidence.EventDTO `json:"events"`
}

// MailArchive is the on-disk shape of a mail export.
type MailArchive struct {
	Items []evidence.MailItem `json:"items"`
}

// CallArchive is the on-disk shape of a call history export.
type CallArchive struct {
	Calls []evidence.CallRecordDTO `json:"calls"`
}

// Result reports what one import run did.
type Result struct {
	Seen     int           `json:"seen"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
}

func readArchive(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to parse archive %s: %w", path, err)
	}
	return nil
}

// ImportCalendarFile merges a calendar archive. With prune set, calendar
// records absent from the archive are deleted afterwards.
func ImportCalendarFile(ctx context.Context, svc *evidence.Service, path string, prune bool) (Result, error) {
	start := time.Now()
	var out Result

	var arch CalendarArchive
	if err := readArchive(path, &arch); err != nil {
		return out, err
	}
	out.Seen = len(arch.Events)

	batch, err := svc.BulkUpsertCalendar(ctx, arch.Events)
	if err != nil {
		return out, err
	}
	out.Created = batch.Created
	out.Updated = batch.Updated

	if prune {
		live := make([]string, 0, len(arch.Events))
		for _, e := range arch.Events {
			live = append(live, e.SourceUID)
		}
		n, err := svc.PruneOrphans(ctx, evidence.SourceCalendar, live, nil)
		if err != nil {
			return out, err
		}
		out.Pruned = n
	}

	out.Duration = time.Since(start)
	return out, nil
}

// ImportMailFile merges a mail archive. With prune set, mail records absent
// from the archive are deleted, but only those whose sender appears in the
// archive: a sender the export never mentions may simply have been filtered
// upstream, and their mail is left alone.
func ImportMailFile(ctx context.Context, svc *evidence.Service, path string, prune bool) (Result, error) {
	start := time.Now()
	var out Result

	var arch MailArchive
	if err := readArchive(path, &arch); err != nil {
		return out, err
	}
	out.Seen = len(arch.Items)

	batch, err := svc.BulkUpsertMail(ctx, arch.Items)
	if err != nil {
		return out, err
	}
	out.Created = batch.Created
	out.Updated = batch.Updated

	if prune {
		live := make([]string, 0, len(arch.Items))
		senders := make([]string, 0, len(arch.Items))
		seen := make(map[string]bool)
		for _, it := range arch.Items {
			live = append(live, it.Email.SourceUID)
			if key := canonical.Email(it.Email.SenderEmail); key != "" && !seen[key] {
				seen[key] = true
				senders = append(senders, key)
			}
		}
		n, err := svc.PruneOrphans(ctx, evidence.SourceMail, live, senders)
		if err != nil {
			return out, err
		}
		out.Pruned = n
	}

	out.Duration = time.Since(start)
	return out, nil
}

// ImportCallsFile merges a call history archive. Call history is append-only
// upstream, so there is no prune variant.
func ImportCallsFile(ctx context.Context, svc *evidence.Service, path string) (Result, error) {
	start := time.Now()
	var out Result

	var arch CallArchive
	if err := readArchive(path, &arch); err != nil {
		return out, err
	}
	out.Seen = len(arch.Calls)

	batch, err := svc.BulkUpsertCalls(ctx, arch.Calls)
	if err != nil {
		return out, err
	}
	out.Created = batch.Created
	out.Updated = batch.Updated
	out.Duration = time.Since(start)
	return out, nil
}
