package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focus_sched/internal/api"
	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
	"focus_sched/internal/messaging/inproc"
	"focus_sched/internal/qlearn"
	sqlitestore "focus_sched/internal/store/sqlite"
)

var (
	flagConfig string
	flagDB     string
	flagJSON   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "focussim",
		Short: "Simulate workday task scheduling under a concentration model",
		Long: `focussim generates task backlogs, trains a Q-learning scheduler over ranking
policies and compares it with deadline, priority and random baselines across
simulated workdays.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "sqlite database path override")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type env struct {
	cfg   config.Config
	store *sqlitestore.Store
	bus   *inproc.Bus
	svc   *experiment.Service
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dbPath := filepath.Clean(firstNonEmpty(flagDB, cfg.Experiment.DBPath, "data/focus_sched.db"))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	bus := inproc.New(256)
	return &env{
		cfg:   cfg,
		store: store,
		bus:   bus,
		svc:   experiment.New(store, bus, cfg, log.Default()),
	}, nil
}

func (e *env) close() {
	_ = e.store.Close()
}

// watchProgress prints every nth progress event until the returned stop
// function is called.
func (e *env) watchProgress(every int) func() {
	ch := e.bus.Register("cli")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			if flagJSON || p.Stage == domain.StageDone {
				continue
			}
			if every > 1 && p.Step%every != 0 && p.Step != p.Total {
				continue
			}
			fmt.Fprintln(os.Stderr, formatProgress(p))
		}
	}()
	return func() {
		e.bus.Unregister("cli")
		<-done
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func generateCmd() *cobra.Command {
	var train, test int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store train and test task sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			datasets, err := e.svc.GenerateDatasets(ctx, train, test)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(datasets)
			}
			fmt.Println(renderDatasets(datasets))
			return nil
		},
	}
	cmd.Flags().IntVar(&train, "train", 100, "number of training task sets")
	cmd.Flags().IntVar(&test, "test", 50, "number of test task sets")
	return cmd
}

func trainCmd() *cobra.Command {
	var (
		episodes    int
		out         string
		resume      string
		datasetKind string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the Q-learning scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			var base *qlearn.Selector
			if resume != "" {
				if base, err = e.svc.LoadModel(resume); err != nil {
					return fmt.Errorf("load model %s: %w", resume, err)
				}
			}
			stop := e.watchProgress(50)
			res, err := e.svc.Train(ctx, experiment.TrainInput{
				Episodes:    episodes,
				DatasetKind: domain.DatasetKind(datasetKind),
				Selector:    base,
				ModelPath:   firstNonEmpty(out, e.cfg.Experiment.ModelPath),
			})
			stop()
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(map[string]any{
					"stats":           res.Stats,
					"episode_rewards": res.EpisodeRewards,
					"episode_scores":  res.EpisodeScores,
				})
			}
			fmt.Println(renderTraining(res))
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", 0, "training episodes (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "model output path (default from config)")
	cmd.Flags().StringVar(&resume, "resume", "", "continue training from a saved model")
	cmd.Flags().StringVar(&datasetKind, "dataset-kind", "", "train on stored datasets of this kind instead of fresh tasks")
	return cmd
}

func compareCmd() *cobra.Command {
	var (
		reps        int
		parallel    int
		model       string
		datasetKind string
		schedulers  string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare schedulers on the same task sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			stop := e.watchProgress(10)
			res, err := e.svc.Compare(ctx, experiment.CompareInput{
				Repetitions: reps,
				Parallel:    parallel,
				Kinds:       splitList(schedulers),
				ModelPath:   modelPath(model, e.cfg),
				DatasetKind: domain.DatasetKind(datasetKind),
			})
			stop()
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(res.Summary)
			}
			fmt.Println(renderSummary(res.Summary))
			return nil
		},
	}
	cmd.Flags().IntVar(&reps, "reps", 0, "repetitions (default from config)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent repetitions (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "trained model path (default from config when the file exists)")
	cmd.Flags().StringVar(&datasetKind, "dataset-kind", "", "evaluate on stored datasets of this kind instead of fresh tasks")
	cmd.Flags().StringVar(&schedulers, "schedulers", "", "comma-separated scheduler kinds (default all)")
	return cmd
}

func replayCmd() *cobra.Command {
	var (
		seed    int64
		kind    string
		model   string
		showLog bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Plan without hidden effort, then replay the plan against the real tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			var rl *qlearn.Selector
			if path := modelPath(model, e.cfg); kind == experiment.KindRL && path != "" {
				if rl, err = e.svc.LoadModel(path); err != nil {
					return fmt.Errorf("load model %s: %w", path, err)
				}
			}
			res, err := e.svc.Replay(ctx, experiment.ReplayInput{Seed: seed, Kind: kind, Model: rl})
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(res)
			}
			fmt.Println(renderReplay(res))
			if showLog {
				fmt.Println(renderEvents(res.Actual.Events))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "task generation seed")
	cmd.Flags().StringVar(&kind, "scheduler", experiment.KindDeadline, "scheduler kind")
	cmd.Flags().StringVar(&model, "model", "", "trained model path for the rl scheduler")
	cmd.Flags().BoolVar(&showLog, "log", false, "print the replayed event log")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored datasets and runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			listen := firstNonEmpty(addr, e.cfg.Server.Addr, ":8092")
			server := &http.Server{
				Addr:              listen,
				Handler:           api.NewRouter(e.store, e.cfg.Server, log.Default()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			log.Printf("focus_sched api started addr=%s", listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address override")
	return cmd
}

// modelPath prefers an explicit path and falls back to the configured one
// only when that file exists.
func modelPath(explicit string, cfg config.Config) string {
	if explicit != "" {
		return explicit
	}
	if cfg.Experiment.ModelPath == "" {
		return ""
	}
	if _, err := os.Stat(cfg.Experiment.ModelPath); err != nil {
		return ""
	}
	return cfg.Experiment.ModelPath
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
