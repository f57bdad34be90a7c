package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ldi/taskdesk/internal/assistant"
	"github.com/ldi/taskdesk/internal/config"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/internal/logging"
	"github.com/ldi/taskdesk/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Overridden in tests.
var (
	newCompleter = llm.New
	runMenu      = ui.RunMenu
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	dsn        string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "taskdesk",
		Short: "Ask questions about tasks and contacts in plain language",
		Long: `taskdesk turns requests like "show overdue tasks for John" or
"mark task 5 completed" into SQL, runs them against the CONTACTS and TASKS
tables and replies with the result.

Run without arguments to pick a command from a menu.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := runMenu()
			if err != nil {
				return fmt.Errorf("error running menu: %w", err)
			}
			if selected == "" {
				return nil
			}
			sub, _, err := cmd.Find([]string{selected})
			if err != nil || sub == cmd {
				return fmt.Errorf("unknown command: %s", selected)
			}
			return sub.RunE(sub, nil)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "Path to the YAML config file")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Database DSN or SQLite path (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.initCmd(),
		a.askCmd(),
		a.chatCmd(),
		a.execCmd(),
		a.extractCmd(),
		a.commitDraftCmd(),
		a.suggestCmd(),
		a.statusCmd(),
		a.exportCmd(),
		a.mcpCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dsn != "" {
		cfg.Database.DSN = a.dsn
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) isSQLite() bool {
	return db.DialectFor(a.cfg.Database.Driver) == db.DialectSQLite
}

// openDB connects, applies the schema and, when configured, keeps the
// snapshot file in step with every write.
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Connect(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN, a.cfg.DBOptions(a.logger))
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if a.cfg.AutoSnapshot {
		database.EnableAutoSnapshot(a.cfg.Snapshot)
	}
	return database, nil
}

func (a *app) completer(ctx context.Context) (llm.Completer, error) {
	c, err := newCompleter(ctx, a.cfg.LLMConfig(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to set up language model (set GROQ_API_KEY or llm.api_key): %w", err)
	}
	return c, nil
}

func (a *app) pipeline(ctx context.Context, database *db.DB) (*assistant.Assistant, llm.Completer, error) {
	c, err := a.completer(ctx)
	if err != nil {
		return nil, nil, err
	}
	return assistant.NewPipeline(c, database, a.cfg.Dialect(), a.cfg.Guard.Strict, a.logger), c, nil
}

// dataDir is where init puts the SQLite file and snapshot.
func (a *app) dataDir() string {
	if a.isSQLite() && a.cfg.Database.DSN != ":memory:" {
		return filepath.Dir(a.cfg.Database.DSN)
	}
	return filepath.Dir(a.cfg.Snapshot)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// cmdContext returns the command's context, which is nil when a subcommand
// is started from the menu rather than by Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
