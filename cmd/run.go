package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/astralkiln/magnetar/internal/blueprint"
	"github.com/astralkiln/magnetar/internal/config"
	"github.com/astralkiln/magnetar/internal/engine"
	"github.com/astralkiln/magnetar/internal/journal"
	"github.com/astralkiln/magnetar/internal/observability"
	"github.com/astralkiln/magnetar/internal/registry"
	"github.com/astralkiln/magnetar/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the coordination engine",
	Long: "Run loads the build blueprint, broadcasts the initial task list, and\n" +
		"drives the protocol state machine until the build completes or the\n" +
		"process is interrupted. By default lines arrive on stdin as\n" +
		"\"sender: text\" and replies go to stdout; --inbox/--outbox switch to a\n" +
		"file-based transport that agents append to.",
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("dir", "", "build directory (default current directory)")
	runCmd.Flags().Duration("claim-expiry", 0, "override claim expiry")
	runCmd.Flags().Duration("progress-timeout", 0, "override progress timeout")
	runCmd.Flags().Int("max-retries", 0, "override max audit retries")
	runCmd.Flags().Duration("sweep-interval", 0, "override timeout sweep cadence")
	runCmd.Flags().String("journal", "", "JSONL journal path")
	runCmd.Flags().String("journal-db", "", "SQLite journal path")
	runCmd.Flags().String("inbox", "", "inbox file to tail for agent lines")
	runCmd.Flags().String("outbox", "", "outbox file for coordinator messages")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	// Bind at execution time: several subcommands expose a --dir flag for
	// the same key, and only the running command's flag should win.
	_ = viper.BindPFlag("build_dir", cmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("claim_expiry", cmd.Flags().Lookup("claim-expiry"))
	_ = viper.BindPFlag("progress_timeout", cmd.Flags().Lookup("progress-timeout"))
	_ = viper.BindPFlag("max_retries", cmd.Flags().Lookup("max-retries"))
	_ = viper.BindPFlag("sweep_interval", cmd.Flags().Lookup("sweep-interval"))
	_ = viper.BindPFlag("journal_path", cmd.Flags().Lookup("journal"))
	_ = viper.BindPFlag("journal_db", cmd.Flags().Lookup("journal-db"))
	_ = viper.BindPFlag("inbox", cmd.Flags().Lookup("inbox"))
	_ = viper.BindPFlag("outbox", cmd.Flags().Lookup("outbox"))

	cfg := config.Load()
	logger := observability.InitLogger("magnetar", cfg.Verbose)

	bp, err := blueprint.Load(cfg.BuildDir)
	if err != nil {
		return fmt.Errorf("loading blueprint: %w", err)
	}
	if len(bp.Components) == 0 {
		return fmt.Errorf("blueprint %s declares no components", bp.Dir)
	}

	build := registry.NewBuild(bp.Manifest.Build.ID, bp.Specs())

	rec, closeRec, err := buildRecorder(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeRec()

	deliver, lines, stopTransport, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	defer stopTransport()

	eng := engine.New(build, engine.Config{
		ClaimExpiry:     cfg.ClaimExpiry,
		ProgressTimeout: cfg.ProgressTimeout,
		MaxRetries:      cfg.MaxRetries,
	}, deliver).WithLogger(logger).WithRecorder(rec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("build", build.ID).Int("components", build.Len()).
		Msg("coordination engine started")
	eng.BroadcastTasks()

	// Single event loop: inbound lines and sweep ticks are serialized
	// here, which is the only synchronization the engine requires.
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return nil
		case ln, ok := <-lines:
			if !ok {
				logger.Info().Msg("transport closed")
				return nil
			}
			eng.HandleLine(ln.Text, ln.Sender)
			if eng.Complete() {
				logger.Info().Str("build", build.ID).Msg("build complete")
				return nil
			}
		case <-ticker.C:
			eng.Sweep()
		}
	}
}

// buildRecorder assembles the configured journal sinks into one recorder.
// With no sinks configured it returns a nil recorder, which the engine
// treats as "record nothing".
func buildRecorder(ctx context.Context, cfg config.Config) (journal.Recorder, func(), error) {
	var recorders []journal.Recorder
	var closers []func()

	if cfg.JournalPath != "" {
		em, err := journal.NewEmitter(cfg.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, em)
		closers = append(closers, func() { _ = em.Close() })
	}
	if cfg.JournalDB != "" {
		store, err := journal.NewStore(ctx, cfg.JournalDB)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, store)
		closers = append(closers, func() { _ = store.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(recorders) == 0 {
		return nil, closeAll, nil
	}
	return journal.Fanout(recorders...), closeAll, nil
}

// buildTransport selects the filebox transport when an inbox is
// configured, falling back to the stdin/stdout console.
func buildTransport(cfg config.Config) (engine.Deliverer, <-chan transport.Line, func(), error) {
	if cfg.Inbox != "" {
		outbox := cfg.Outbox
		if outbox == "" {
			outbox = cfg.Inbox + ".out"
		}
		fb, err := transport.NewFilebox(cfg.Inbox, outbox)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := fb.Start(); err != nil {
			return nil, nil, nil, err
		}
		return fb, fb.Lines, fb.Stop, nil
	}

	console := &transport.Console{In: os.Stdin, Out: os.Stdout}
	return console, console.Lines(), func() {}, nil
}
