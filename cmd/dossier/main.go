package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carraway/dossier/internal/config"
	"github.com/carraway/dossier/internal/db"
	"github.com/carraway/dossier/internal/directory"
	"github.com/carraway/dossier/internal/evidence"
	"github.com/carraway/dossier/internal/importer"
	"github.com/carraway/dossier/internal/live"
	"github.com/carraway/dossier/internal/state"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dossier",
		Short: "Personal interaction dossier",
		Long: `Dossier reconciles your interactions (calendar, mail, iMessage,
calls) into a single reviewable evidence store, resolving
participants against your contact directory.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(meCmd())
	rootCmd.AddCommand(peopleCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(recentCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(unreviewCmd())
	rootCmd.AddCommand(wipeCmd())
	rootCmd.AddCommand(liveCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// fail prints an error in the selected output mode and exits.
func fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "message": msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

func openStore() (*evidence.Service, func()) {
	database, err := db.Open()
	if err != nil {
		fail("Failed to open database: %v", err)
	}
	return evidence.New(database), func() { database.Close() }
}

// signalContext returns a context cancelled by Ctrl+C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("dossier %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize dossier config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				ConfigDir string `json:"config_dir,omitempty"`
				DataDir   string `json:"data_dir,omitempty"`
				DBPath    string `json:"db_path,omitempty"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				fail("Failed to get config directory: %v", err)
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				fail("Failed to get data directory: %v", err)
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				fail("Failed to create config directory: %v", err)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fail("Failed to create data directory: %v", err)
			}
			if err := db.Init(); err != nil {
				fail("Failed to initialize database: %v", err)
			}
			dbPath, err := db.GetPath()
			if err != nil {
				fail("Failed to get database path: %v", err)
			}

			result := Result{
				OK:        true,
				Message:   "Dossier initialized successfully",
				ConfigDir: configDir,
				DataDir:   dataDir,
				DBPath:    dbPath,
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
				fmt.Println("\nDossier initialized successfully!")
			}
		},
	}
}

func meCmd() *cobra.Command {
	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Configure your own identity",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set your name and aliases",
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("name")
			emails, _ := cmd.Flags().GetStringSlice("email")
			phones, _ := cmd.Flags().GetStringSlice("phone")

			if name == "" {
				fail("The --name flag is required")
			}

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			if _, err := directory.SetSelf(database, name, emails, phones); err != nil {
				fail("Failed to set identity: %v", err)
			}

			// Directory changed; bring stored evidence back in line.
			svc := evidence.New(database)
			res, err := svc.RefreshParticipantResolution(context.Background())
			if err != nil {
				fail("Failed to re-resolve evidence: %v", err)
			}

			cfg, err := config.Load()
			if err != nil {
				fail("Failed to load config: %v", err)
			}
			cfg.Me = config.MeConfig{Name: name, Emails: emails, Phones: phones}
			if err := cfg.Save(); err != nil {
				fail("Failed to save config: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "relinked": res.Updated})
			} else {
				fmt.Println("✓ Identity updated")
				if res.Updated > 0 {
					fmt.Printf("  Re-resolved %d records\n", res.Updated)
				}
			}
		},
	}
	setCmd.Flags().String("name", "", "Your full name")
	setCmd.Flags().StringSlice("email", nil, "Your email address (repeatable)")
	setCmd.Flags().StringSlice("phone", nil, "Your phone number (repeatable)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show your configured identity",
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			self, err := directory.Self(database)
			if err != nil {
				fail("Failed to get identity: %v", err)
			}
			if self == nil {
				fail("Identity not configured. Run 'dossier me set --name \"Your Name\"' first.")
			}

			if jsonOutput {
				printJSON(self)
			} else {
				fmt.Printf("Name: %s\n", self.Name)
				for _, e := range self.Emails {
					fmt.Printf("  email: %s\n", e)
				}
				for _, p := range self.Phones {
					fmt.Printf("  phone: %s\n", p)
				}
			}
		},
	}

	meCmd.AddCommand(setCmd)
	meCmd.AddCommand(showCmd)
	return meCmd
}

func peopleCmd() *cobra.Command {
	peopleCmd := &cobra.Command{
		Use:   "people",
		Short: "Manage the identity directory",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List directory entries",
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			people, err := directory.All(database)
			if err != nil {
				fail("Failed to list people: %v", err)
			}

			if jsonOutput {
				printJSON(people)
				return
			}
			if len(people) == 0 {
				fmt.Println("No people in directory")
				return
			}
			for _, p := range people {
				marker := " "
				if p.IsMe {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, p.ID, p.Name)
				for _, e := range p.Emails {
					fmt.Printf("    email: %s\n", e)
				}
				for _, ph := range p.Phones {
					fmt.Printf("    phone: %s\n", ph)
				}
			}
		},
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a person",
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("name")
			emails, _ := cmd.Flags().GetStringSlice("email")
			phones, _ := cmd.Flags().GetStringSlice("phone")
			if name == "" {
				fail("The --name flag is required")
			}

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			id, err := directory.Create(database, name, false, emails, phones)
			if err != nil {
				fail("Failed to add person: %v", err)
			}

			svc := evidence.New(database)
			res, err := svc.RefreshParticipantResolution(context.Background())
			if err != nil {
				fail("Failed to re-resolve evidence: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "id": id, "relinked": res.Updated})
			} else {
				fmt.Printf("✓ Added %s (%s)\n", name, id)
				if res.Updated > 0 {
					fmt.Printf("  Re-resolved %d records\n", res.Updated)
				}
			}
		},
	}
	addCmd.Flags().String("name", "", "Person's full name")
	addCmd.Flags().StringSlice("email", nil, "Email alias (repeatable)")
	addCmd.Flags().StringSlice("phone", nil, "Phone alias (repeatable)")

	removeCmd := &cobra.Command{
		Use:   "remove <person-id>",
		Short: "Remove a person",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			if err := directory.Remove(database, args[0]); err != nil {
				fail("Failed to remove person: %v", err)
			}

			svc := evidence.New(database)
			res, err := svc.RefreshParticipantResolution(context.Background())
			if err != nil {
				fail("Failed to re-resolve evidence: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "relinked": res.Updated})
			} else {
				fmt.Println("✓ Removed")
				if res.Updated > 0 {
					fmt.Printf("  Re-resolved %d records\n", res.Updated)
				}
			}
		},
	}

	peopleCmd.AddCommand(listCmd)
	peopleCmd.AddCommand(addCmd)
	peopleCmd.AddCommand(removeCmd)
	return peopleCmd
}

func importCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import evidence from local archives",
	}

	reportImport := func(what string, res importer.Result) {
		if jsonOutput {
			printJSON(map[string]any{
				"ok": true, "seen": res.Seen, "created": res.Created,
				"updated": res.Updated, "pruned": res.Pruned,
				"duration": res.Duration.String(),
			})
			return
		}
		fmt.Printf("✓ %s import: %d seen, %d created, %d updated", what, res.Seen, res.Created, res.Updated)
		if res.Pruned > 0 {
			fmt.Printf(", %d pruned", res.Pruned)
		}
		fmt.Printf(" (%s)\n", res.Duration.Round(time.Millisecond))
	}

	calendarCmd := &cobra.Command{
		Use:   "calendar <archive.json>",
		Short: "Import a calendar export",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			prune, _ := cmd.Flags().GetBool("prune")
			svc, closeDB := openStore()
			defer closeDB()
			ctx, stop := signalContext()
			defer stop()

			res, err := importer.ImportCalendarFile(ctx, svc, args[0], prune)
			if err != nil {
				fail("Calendar import failed: %v", err)
			}
			reportImport("Calendar", res)
		},
	}
	calendarCmd.Flags().Bool("prune", false, "Delete calendar records missing from the archive")

	mailCmd := &cobra.Command{
		Use:   "mail <archive.json>",
		Short: "Import a mail export",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			prune, _ := cmd.Flags().GetBool("prune")
			svc, closeDB := openStore()
			defer closeDB()
			ctx, stop := signalContext()
			defer stop()

			res, err := importer.ImportMailFile(ctx, svc, args[0], prune)
			if err != nil {
				fail("Mail import failed: %v", err)
			}
			reportImport("Mail", res)
		},
	}
	mailCmd.Flags().Bool("prune", false, "Delete mail records missing from the archive (scoped to its senders)")

	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Import messages from chat.db",
		Run: func(cmd *cobra.Command, args []string) {
			full, _ := cmd.Flags().GetBool("full")
			chatDB, _ := cmd.Flags().GetString("chat-db")

			cfg, err := config.Load()
			if err != nil {
				fail("Failed to load config: %v", err)
			}
			if chatDB == "" {
				chatDB = cfg.Importers.Messages.ChatDBPath
			}

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()
			svc := evidence.New(database)
			ctx, stop := signalContext()
			defer stop()

			imp, err := importer.NewChatDBImporter(chatDB)
			if err != nil {
				fail("%v", err)
			}
			res, err := imp.Import(ctx, database, svc, full)
			if err != nil {
				fail("Messages import failed: %v", err)
			}
			reportImport("Messages", res)
		},
	}
	messagesCmd.Flags().Bool("full", false, "Ignore the cursor and reread everything")
	messagesCmd.Flags().String("chat-db", "", "Path to chat.db (default: ~/Library/Messages/chat.db)")

	callsCmd := &cobra.Command{
		Use:   "calls <archive.json>",
		Short: "Import a call history export",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, closeDB := openStore()
			defer closeDB()
			ctx, stop := signalContext()
			defer stop()

			res, err := importer.ImportCallsFile(ctx, svc, args[0])
			if err != nil {
				fail("Calls import failed: %v", err)
			}
			reportImport("Calls", res)
		},
	}

	contactsCmd := &cobra.Command{
		Use:   "contacts <archive.json>",
		Short: "Import a contacts export into the directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()
			svc := evidence.New(database)
			ctx, stop := signalContext()
			defer stop()

			res, err := importer.ImportContactsFile(ctx, database, svc, args[0])
			if err != nil {
				fail("Contacts import failed: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]any{
					"ok": true, "seen": res.Seen, "created": res.Created,
					"merged": res.Merged, "relinked": res.Relinked,
					"duration": res.Duration.String(),
				})
			} else {
				fmt.Printf("✓ Contacts import: %d seen, %d created, %d merged, %d records re-resolved (%s)\n",
					res.Seen, res.Created, res.Merged, res.Relinked, res.Duration.Round(time.Millisecond))
			}
		},
	}

	importCmd.AddCommand(calendarCmd)
	importCmd.AddCommand(mailCmd)
	importCmd.AddCommand(messagesCmd)
	importCmd.AddCommand(callsCmd)
	importCmd.AddCommand(contactsCmd)
	return importCmd
}

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete records missing from a live UID set",
		Long: `Prune deletes records of one source whose source UID does not appear
in the given live set. The live set is a JSON array of source UIDs.
For mail, --senders limits deletion to records from those senders.`,
		Run: func(cmd *cobra.Command, args []string) {
			sourceFlag, _ := cmd.Flags().GetString("source")
			liveFile, _ := cmd.Flags().GetString("live-file")
			senders, _ := cmd.Flags().GetStringSlice("senders")

			if sourceFlag == "" || liveFile == "" {
				fail("Both --source and --live-file are required")
			}

			b, err := os.ReadFile(liveFile)
			if err != nil {
				fail("Failed to read live set: %v", err)
			}
			var liveUIDs []string
			if err := json.Unmarshal(b, &liveUIDs); err != nil {
				fail("Failed to parse live set: %v", err)
			}

			svc, closeDB := openStore()
			defer closeDB()

			n, err := svc.PruneOrphans(context.Background(), evidence.Source(sourceFlag), liveUIDs, senders)
			if err != nil {
				fail("Prune failed: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "deleted": n})
			} else {
				fmt.Printf("✓ Pruned %d records\n", n)
			}
		},
	}
	cmd.Flags().String("source", "", "Source kind to prune (calendar, mail, iMessage, phoneCall, faceTime)")
	cmd.Flags().String("live-file", "", "JSON array of source UIDs still present upstream")
	cmd.Flags().StringSlice("senders", nil, "Mail only: limit deletion to these sender emails")
	return cmd
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Re-resolve stored evidence against the directory",
		Run: func(cmd *cobra.Command, args []string) {
			svc, closeDB := openStore()
			defer closeDB()

			res, err := svc.RefreshParticipantResolution(context.Background())
			if err != nil {
				fail("Re-resolution failed: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]any{"ok": true, "scanned": res.Scanned, "updated": res.Updated})
			} else {
				fmt.Printf("✓ Scanned %d records, updated %d\n", res.Scanned, res.Updated)
			}
		},
	}
}

func recentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent <person>",
		Short: "Find the person's most recent meeting",
		Long:  "Looks up the calendar record that most plausibly just happened with the given person (by name or directory id).",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			window, _ := cmd.Flags().GetDuration("window")

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			person, err := directory.GetByName(database, args[0])
			if err != nil {
				fail("Failed to look up person: %v", err)
			}
			if person == nil {
				person, err = directory.Get(database, args[0])
				if err != nil {
					fail("Failed to look up person: %v", err)
				}
			}
			if person == nil {
				fail("No such person: %s", args[0])
			}

			svc := evidence.New(database)
			rec, err := svc.FindRecentMeeting(context.Background(), person.ID, time.Now(), window)
			if err != nil {
				fail("Lookup failed: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "meeting": rec})
				return
			}
			if rec == nil {
				fmt.Printf("No recent meeting with %s\n", person.Name)
				return
			}
			fmt.Printf("%s\n", rec.Title)
			fmt.Printf("  %s to %s\n", rec.OccurredAt.Local().Format("Mon Jan 2 15:04"), rec.EffectiveEnd().Local().Format("15:04"))
			if rec.Snippet != "" {
				fmt.Printf("  %s\n", rec.Snippet)
			}
		},
	}
	cmd.Flags().Duration("window", evidence.DefaultRecentWindow, "How far back to look")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List evidence records",
		Run: func(cmd *cobra.Command, args []string) {
			needsReview, _ := cmd.Flags().GetBool("needs-review")
			done, _ := cmd.Flags().GetBool("done")

			svc, closeDB := openStore()
			defer closeDB()
			ctx := context.Background()

			var recs []evidence.Record
			var err error
			switch {
			case needsReview:
				recs, err = svc.FetchNeedsReview(ctx)
			case done:
				recs, err = svc.FetchDone(ctx)
			default:
				recs, err = svc.FetchAll(ctx)
			}
			if err != nil {
				fail("Failed to list records: %v", err)
			}

			if jsonOutput {
				printJSON(recs)
				return
			}
			if len(recs) == 0 {
				fmt.Println("No records")
				return
			}
			for _, r := range recs {
				marker := " "
				if r.State == evidence.StateNeedsReview {
					marker = "!"
				}
				fmt.Printf("%s %s  %-10s %s  %s\n", marker, r.ID, r.Source,
					r.OccurredAt.Local().Format("2006-01-02 15:04"), r.Title)
			}
		},
	}
	cmd.Flags().Bool("needs-review", false, "Only records awaiting review")
	cmd.Flags().Bool("done", false, "Only reviewed records")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id | source-uid>",
		Short: "Show one evidence record",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, closeDB := openStore()
			defer closeDB()
			ctx := context.Background()

			rec, err := svc.Fetch(ctx, args[0])
			if err != nil {
				fail("Failed to fetch record: %v", err)
			}
			if rec == nil {
				rec, err = svc.FetchBySourceUID(ctx, args[0])
				if err != nil {
					fail("Failed to fetch record: %v", err)
				}
			}
			if rec == nil {
				fail("No such record: %s", args[0])
			}

			if jsonOutput {
				printJSON(rec)
				return
			}
			fmt.Printf("%s  [%s, %s]\n", rec.Title, rec.Source, rec.State)
			fmt.Printf("  id: %s\n", rec.ID)
			fmt.Printf("  source uid: %s\n", rec.SourceUID)
			fmt.Printf("  occurred: %s\n", rec.OccurredAt.Local().Format(time.RFC1123))
			if rec.Snippet != "" {
				fmt.Printf("  snippet: %s\n", rec.Snippet)
			}
			if len(rec.ParticipantHints) > 0 {
				fmt.Println("  participants:")
				for _, h := range rec.ParticipantHints {
					flags := ""
					if h.IsOrganizer {
						flags += " organizer"
					}
					if h.IsVerified {
						flags += " verified"
					}
					fmt.Printf("    %s <%s>%s\n", h.DisplayName, h.RawEmail, flags)
				}
			}
			if len(rec.LinkedPeople) > 0 {
				fmt.Println("  linked people:")
				for _, p := range rec.LinkedPeople {
					fmt.Printf("    %s (%s)\n", p.Name, p.ID)
				}
			}
			if len(rec.Signals) > 0 {
				fmt.Println("  signals:")
				for _, sig := range rec.Signals {
					fmt.Printf("    [%s %.2f] %s\n", sig.Kind, sig.Confidence, sig.Message)
				}
			}
		},
	}
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <id>",
		Short: "Mark a record as reviewed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, closeDB := openStore()
			defer closeDB()
			if err := svc.MarkAsReviewed(context.Background(), args[0]); err != nil {
				fail("Failed to mark reviewed: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]any{"ok": true})
			} else {
				fmt.Println("✓ Marked reviewed")
			}
		},
	}
}

func unreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unreview <id>",
		Short: "Send a record back to the review queue",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, closeDB := openStore()
			defer closeDB()
			if err := svc.MarkAsNeedsReview(context.Background(), args[0]); err != nil {
				fail("Failed to mark needs review: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]any{"ok": true})
			} else {
				fmt.Println("✓ Back in review queue")
			}
		},
	}
}

func wipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all evidence records",
		Run: func(cmd *cobra.Command, args []string) {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fail("Refusing to wipe without --force")
			}
			svc, closeDB := openStore()
			defer closeDB()
			n, err := svc.DeleteAll(context.Background())
			if err != nil {
				fail("Wipe failed: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]any{"ok": true, "deleted": n})
			} else {
				fmt.Printf("✓ Deleted %d records\n", n)
			}
		},
	}
	cmd.Flags().Bool("force", false, "Actually delete everything")
	return cmd
}

func liveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Watch chat.db and import new messages continuously",
		Run: func(cmd *cobra.Command, args []string) {
			chatDB, _ := cmd.Flags().GetString("chat-db")

			cfg, err := config.Load()
			if err != nil {
				fail("Failed to load config: %v", err)
			}
			if chatDB == "" {
				chatDB = cfg.Importers.Messages.ChatDBPath
			}
			debounce := time.Duration(cfg.Importers.Messages.DebounceSeconds) * time.Second

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()
			svc := evidence.New(database)

			ctx, stop := signalContext()
			defer stop()

			fmt.Println("Press Ctrl+C to stop")
			err = live.Watch(ctx, database, svc, live.Options{
				ChatDBPath: chatDB,
				Debounce:   debounce,
				Logf: func(format string, args ...any) {
					fmt.Printf(format+"\n", args...)
				},
			})
			if err != nil {
				fail("Live watch failed: %v", err)
			}
		},
	}
	cmd.Flags().String("chat-db", "", "Path to chat.db (default: ~/Library/Messages/chat.db)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store counts and importer cursors",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK          bool           `json:"ok"`
				DBPath      string         `json:"db_path"`
				People      int            `json:"people"`
				Records     int            `json:"records"`
				NeedsReview int            `json:"needs_review"`
				BySource    map[string]int `json:"by_source"`
				Cursor      string         `json:"messages_cursor,omitempty"`
				LastBeat    string         `json:"live_last_beat,omitempty"`
			}

			database, err := db.Open()
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer database.Close()

			dbPath, _ := db.GetPath()
			result := Result{OK: true, DBPath: dbPath, BySource: map[string]int{}}

			if err := database.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&result.People); err != nil {
				fail("Failed to count people: %v", err)
			}
			if err := database.QueryRow(`SELECT COUNT(*) FROM evidence`).Scan(&result.Records); err != nil {
				fail("Failed to count records: %v", err)
			}
			if err := database.QueryRow(`SELECT COUNT(*) FROM evidence WHERE state = 'needsReview'`).Scan(&result.NeedsReview); err != nil {
				fail("Failed to count review queue: %v", err)
			}

			rows, err := database.Query(`SELECT source, COUNT(*) FROM evidence GROUP BY source`)
			if err != nil {
				fail("Failed to count by source: %v", err)
			}
			for rows.Next() {
				var src string
				var n int
				if err := rows.Scan(&src, &n); err != nil {
					rows.Close()
					fail("Failed to scan counts: %v", err)
				}
				result.BySource[src] = n
			}
			rows.Close()

			if cursor, ok, err := state.Get(database, "messages", "last_rowid"); err == nil && ok {
				result.Cursor = cursor
			}
			if beat, err := live.LastBeat(database); err == nil && !beat.IsZero() {
				result.LastBeat = beat.Local().Format(time.RFC1123)
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Database: %s\n", result.DBPath)
			fmt.Printf("People: %d\n", result.People)
			fmt.Printf("Records: %d (%d awaiting review)\n", result.Records, result.NeedsReview)
			if len(result.BySource) > 0 {
				fmt.Println("By source:")
				for src, n := range result.BySource {
					fmt.Printf("  %-10s %d\n", src, n)
				}
			}
			if result.Cursor != "" {
				fmt.Printf("Messages cursor: row %s\n", result.Cursor)
			}
			if result.LastBeat != "" {
				fmt.Printf("Live watcher last import: %s\n", result.LastBeat)
			}
		},
	}
}
