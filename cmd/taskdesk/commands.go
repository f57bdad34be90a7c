package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/ldi/taskdesk/internal/assistant"
	"github.com/ldi/taskdesk/internal/classify"
	"github.com/ldi/taskdesk/internal/extract"
	"github.com/ldi/taskdesk/internal/format"
	"github.com/ldi/taskdesk/internal/mcp"
	"github.com/ldi/taskdesk/internal/sqlguard"
	"github.com/ldi/taskdesk/internal/suggest"
	"github.com/ldi/taskdesk/internal/synth"
	"github.com/ldi/taskdesk/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema, optionally with sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmdContext(cmd)

			dir := a.dataDir()
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s directory: %w", dir, err)
			}
			if a.isSQLite() {
				gitignorePath := filepath.Join(dir, ".gitignore")
				if err := os.WriteFile(gitignorePath, []byte("*.db*\n"), 0644); err != nil {
					return fmt.Errorf("failed to create .gitignore: %w", err)
				}
				fmt.Fprintf(out, "✓ Created %s\n", gitignorePath)
			}

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Fprintf(out, "✓ Initialized %s database\n", database.Dialect())

			// A snapshot from another checkout wins over the sample data.
			if _, err := os.Stat(a.cfg.Snapshot); err == nil {
				database.DisableOnChange()
				err := database.ImportSnapshot(ctx, a.cfg.Snapshot)
				database.EnableOnChange()
				if err != nil {
					return fmt.Errorf("failed to import snapshot: %w", err)
				}
				fmt.Fprintf(out, "✓ Imported snapshot from %s\n", a.cfg.Snapshot)
			} else if seed {
				seeded, err := database.Seed(ctx)
				if err != nil {
					return fmt.Errorf("failed to seed database: %w", err)
				}
				if seeded {
					fmt.Fprintln(out, "✓ Seeded sample contacts and tasks")
				} else {
					fmt.Fprintln(out, "✓ Contacts already present, skipped sample data")
				}
			}

			fmt.Fprintln(out, "✓ taskdesk initialized successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Insert the sample contacts and tasks")
	return cmd
}

func (a *app) askCmd() *cobra.Command {
	var showSQL bool
	var session string
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Answer one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			asst, _, err := a.pipeline(ctx, database)
			if err != nil {
				return err
			}

			reply := asst.Handle(ctx, session, joinArgs(args))
			out := cmd.OutOrStdout()
			if reply.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), reply.Warning)
			}
			if showSQL && reply.Query != nil {
				fmt.Fprintf(out, "-- %s\n%s\n\n", reply.Action, reply.Query.SQL)
			}
			fmt.Fprintln(out, reply.Text)
			if reply.Draft != nil {
				printJSON(cmd, reply.Draft)
			}
			if reply.Failed() {
				return fmt.Errorf("request failed while %s", reply.FailedIn)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "Print the generated SQL")
	cmd.Flags().StringVar(&session, "session", "cli", "Session ID")
	return cmd
}

func (a *app) chatCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation; type 'commit' to save a drafted task, 'exit' to leave",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			asst, _, err := a.pipeline(ctx, database)
			if err != nil {
				return err
			}

			render := func(md string) string { return md + "\n" }
			if !plain {
				r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
				if err != nil {
					return fmt.Errorf("failed to create renderer: %w", err)
				}
				render = func(md string) string {
					s, err := r.Render(md)
					if err != nil {
						return md + "\n"
					}
					return s
				}
			}

			out := cmd.OutOrStdout()
			session := assistant.NewSessionID()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
				case "exit", "quit":
					return nil
				case "commit":
					task, err := asst.CommitDraft(ctx, session, nil)
					if err != nil {
						fmt.Fprintln(out, render("Could not create task: "+err.Error()))
					} else {
						fmt.Fprintln(out, render(fmt.Sprintf("Created task #%d **%s** for %s", task.ID, task.Title, task.AssigneeName)))
					}
				default:
					reply := asst.Handle(ctx, session, line)
					text := reply.Text
					if reply.Draft != nil {
						text += "\n\n" + draftMarkdown(*reply.Draft)
					}
					fmt.Fprint(out, render(text))
				}
				fmt.Fprint(out, "> ")
			}
			return scanner.Err()
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print replies without Markdown rendering")
	return cmd
}

func draftMarkdown(d models.TaskDraft) string {
	rows := [][]any{
		{"title", d.Title},
		{"assigned_to", d.AssignedTo},
		{"deadline", d.Deadline},
		{"category", d.Category},
		{"priority", d.Priority},
		{"status", d.Status},
		{"estimated_time", d.EstimatedTime},
	}
	return format.Table([]string{"field", "value"}, rows) + "\n\nType `commit` to create it."
}

func (a *app) execCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			stmt := joinArgs(args)

			act := models.ActionView
			if action != "" {
				var ok bool
				if act, ok = models.ParseAction(action); !ok {
					return fmt.Errorf("unknown action %q", action)
				}
				if err := (sqlguard.Guard{Strict: a.cfg.Guard.Strict}).Check(act, stmt); err != nil {
					return err
				}
			} else if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT") {
				act = models.ActionUpdate
				if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "INSERT") {
					act = models.ActionAdd
				}
			}

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			res, err := database.Execute(ctx, stmt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.New().Format(act, res))
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Require the statement to match add, view or update")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <description>",
		Short: "Extract a structured task draft from a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := a.completer(ctx)
			if err != nil {
				return err
			}
			draft, err := extract.New(c, a.logger).Extract(ctx, joinArgs(args))
			if err != nil {
				return err
			}
			printJSON(cmd, draft)
			return nil
		},
	}
}

func (a *app) commitDraftCmd() *cobra.Command {
	var assignee, deadline string
	cmd := &cobra.Command{
		Use:   "commit-draft <description>",
		Short: "Extract a task from a description and create it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			c, err := a.completer(ctx)
			if err != nil {
				return err
			}
			draft, err := extract.New(c, a.logger).Extract(ctx, joinArgs(args))
			if err != nil {
				return err
			}

			asst := assistant.NewPipeline(c, database, a.cfg.Dialect(), a.cfg.Guard.Strict, a.logger)
			session := assistant.NewSessionID()
			asst.Sessions().StageDraft(session, draft)
			task, err := asst.CommitDraft(ctx, session, &models.TaskDraft{AssignedTo: assignee, Deadline: deadline})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created task #%d %q for %s, due %s\n",
				task.ID, task.Title, task.AssigneeName, task.Deadline.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "Override the extracted assignee")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Override the extracted deadline")
	return cmd
}

func (a *app) suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <task>",
		Short: "Recommend budget, tools and people for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			c, err := a.completer(ctx)
			if err != nil {
				return err
			}
			out, err := suggest.New(c, database, a.logger).Suggest(ctx, joinArgs(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts and overdue work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			contacts, err := database.ListContacts(ctx)
			if err != nil {
				return err
			}
			stats, err := database.Stats(ctx, time.Now())
			if err != nil {
				return err
			}
			pool := database.PoolStats()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "taskdesk status")
			fmt.Fprintln(out, "===============")
			fmt.Fprintf(out, "Database:      %s\n", database.Dialect())
			fmt.Fprintf(out, "Contacts:      %d\n", len(contacts))
			fmt.Fprintf(out, "Total Tasks:   %d\n", stats.Total)
			fmt.Fprintf(out, "Overdue Tasks: %d\n", stats.Overdue)
			fmt.Fprintf(out, "Pool:          %d in use, %d idle, max %d\n", pool.InUse, pool.Idle, pool.Max)

			fmt.Fprintln(out, "\nTask Breakdown:")
			for _, s := range models.TaskStatuses {
				fmt.Fprintf(out, "  %-20s %d\n", s+":", stats.ByStatus[s])
			}
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Write all contacts and tasks to a JSONL snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			path := a.cfg.Snapshot
			if len(args) > 0 {
				path = args[0]
			}

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.ExportSnapshot(ctx, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported snapshot to %s\n", path)
			return nil
		},
	}
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			asst, c, err := a.pipeline(ctx, database)
			if err != nil {
				return err
			}
			dialect := a.cfg.Dialect()
			s := mcp.NewServer(mcp.Services{
				DB:         database,
				Assistant:  asst,
				Classifier: classify.New(c, a.logger),
				Synth:      synth.New(c, dialect, a.logger),
				Extractor:  extract.New(c, a.logger),
				Formatter:  format.New(),
				Guard:      sqlguard.Guard{Strict: a.cfg.Guard.Strict},
			})
			return mcp.Serve(s)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
}
