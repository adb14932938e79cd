package importer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/carraway/dossier/internal/evidence"
	"github.com/carraway/dossier/internal/state"
)

const (
	messagesImporterName = "messages"
	messagesCursorKey    = "last_rowid"
)

var chatDBEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// ChatDBImporter reads an iMessage chat.db snapshot directly. The database
// is opened read-only on a separate driver so the live Messages process is
// never blocked, and a ROWID cursor makes repeat imports incremental.
type ChatDBImporter struct {
	Path string
}

// NewChatDBImporter validates the snapshot path up front so a missing Full
// Disk Access grant fails before any store writes.
func NewChatDBImporter(path string) (*ChatDBImporter, error) {
	if path == "" {
		path = os.ExpandEnv("$HOME/Library/Messages/chat.db")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chat.db not found at %s: %w", path, err)
	}
	return &ChatDBImporter{Path: path}, nil
}

// chatDBTime converts a raw message date. Modern macOS stores nanoseconds
// since 2001-01-01 UTC; pre-High-Sierra databases stored seconds.
func chatDBTime(raw int64) time.Time {
	if raw > 1e12 {
		return chatDBEpoch.Add(time.Duration(raw) * time.Nanosecond)
	}
	return chatDBEpoch.Add(time.Duration(raw) * time.Second)
}

// Import reads messages newer than the stored cursor, merges them, and
// advances the cursor. Full resets the cursor and rereads everything.
func (imp *ChatDBImporter) Import(ctx context.Context, store *sql.DB, svc *evidence.Service, full bool) (Result, error) {
	start := time.Now()
	var out Result

	var sinceRowID int64
	if !full {
		v, ok, err := state.Get(store, messagesImporterName, messagesCursorKey)
		if err != nil {
			return out, err
		}
		if ok {
			sinceRowID, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return out, fmt.Errorf("corrupt messages cursor %q: %w", v, err)
			}
		}
	}

	items, maxRowID, err := imp.readSince(ctx, sinceRowID)
	if err != nil {
		return out, err
	}
	out.Seen = len(items)
	if len(items) == 0 {
		out.Duration = time.Since(start)
		return out, nil
	}

	batch, err := svc.BulkUpsertMessages(ctx, items)
	if err != nil {
		return out, err
	}
	out.Created = batch.Created
	out.Updated = batch.Updated

	if maxRowID > sinceRowID {
		if err := state.Set(store, messagesImporterName, messagesCursorKey, strconv.FormatInt(maxRowID, 10)); err != nil {
			return out, err
		}
	}

	out.Duration = time.Since(start)
	return out, nil
}

func (imp *ChatDBImporter) readSince(ctx context.Context, sinceRowID int64) ([]evidence.MessageItem, int64, error) {
	chatDB, err := sql.Open("sqlite3", imp.Path+"?mode=ro")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open chat.db: %w", err)
	}
	defer chatDB.Close()

	rows, err := chatDB.QueryContext(ctx, `
		SELECT m.ROWID, m.guid, COALESCE(m.text, ''), COALESCE(h.id, ''),
		       m.is_from_me, m.cache_has_attachments, m.date
		FROM message m
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE m.ROWID > ?
		ORDER BY m.ROWID
	`, sinceRowID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chat.db: %w", err)
	}
	defer rows.Close()

	var items []evidence.MessageItem
	var maxRowID int64
	for rows.Next() {
		var rowID, rawDate int64
		var guid, text, handle string
		var fromMe, hasAttachment int
		if err := rows.Scan(&rowID, &guid, &text, &handle, &fromMe, &hasAttachment, &rawDate); err != nil {
			return nil, 0, fmt.Errorf("failed to scan chat.db row: %w", err)
		}
		if rowID > maxRowID {
			maxRowID = rowID
		}
		if guid == "" {
			continue
		}
		items = append(items, evidence.MessageItem{Message: evidence.MessageDTO{
			GUID:          guid,
			HandleID:      handle,
			Text:          text,
			HasAttachment: hasAttachment != 0,
			IsFromMe:      fromMe != 0,
			Date:          chatDBTime(rawDate),
		}})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read chat.db rows: %w", err)
	}
	return items, maxRowID, nil
}
