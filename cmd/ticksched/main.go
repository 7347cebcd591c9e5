package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticksched/internal/frameloop"
	"ticksched/internal/job"
	"ticksched/internal/logx"
	"ticksched/internal/sched"
)

var (
	configPath string
	frames     int64
	csvPath    string
	logLevel   string
	watch      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ticksched",
		Short: "Run a demo workload on the cooperative frame scheduler",
		Long: `ticksched drives a cooperative task scheduler from a fixed frame loop
(Update, FixedUpdate, LateUpdate) and runs a small demo workload on it.

Examples:
  # Run 300 frames with the default config
  ticksched --frames 300

  # Stream scheduler events to CSV and hot-reload config.yml
  ticksched --config config.yml --csv events.csv --watch
`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "YAML config file (missing file = defaults)")
	rootCmd.Flags().Int64VarP(&frames, "frames", "n", 600, "Stop after this many frames (0 = until interrupted)")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "Write scheduler status events to this CSV file (overrides status_csv)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "Reload the config file when it changes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := sched.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if csvPath != "" {
		cfg.StatusCSV = csvPath
	}

	log := logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Info("loaded config", logx.Any("config", cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sched.New(cfg, log)
	if cfg.StatusCSV != "" {
		if err := s.EnableCSVLogging(cfg.StatusCSV); err != nil {
			return err
		}
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("closing status csv", logx.Err(err))
		}
	}()

	loop := frameloop.New(s, cfg, log)
	loop.SetMaxFrames(frames)

	if watch {
		go func() {
			err := sched.WatchConfig(ctx, configPath, log, func(next sched.Config) {
				// apply on the owner goroutine, between ticks
				_ = s.RunOnOwner(ctx, func() error {
					s.SetSkipFramesBudget(next.SkipFramesBudget())
					loop.SetFixedStep(next.FixedStep())
					return nil
				}, false)
			})
			if err != nil {
				log.Warn("config watcher stopped", logx.Err(err))
			}
		}()
	}

	if err := seedWorkload(ctx, s, log); err != nil {
		return err
	}

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("done",
		logx.Int64("frames", loop.Frames()),
		logx.Bool("interrupted", ctx.Err() != nil),
		logx.Int("active", s.Len()),
		logx.Uint64("update_ticks", s.Ticks(sched.Update)),
		logx.Uint64("fixed_ticks", s.Ticks(sched.FixedUpdate)),
	)
	return err
}

// seedWorkload schedules a mix of tasks that exercises every scheduler feature.
func seedWorkload(ctx context.Context, s *sched.Scheduler, log logx.Logger) error {
	// ordered setup/teardown around the default group
	if _, err := s.Run(job.Steps(3, func(i int) error {
		log.Debug("early task", logx.Int("step", i))
		return nil
	}), sched.WithOrder(-10)); err != nil {
		return err
	}
	if _, err := s.Run(job.Steps(3, func(i int) error {
		log.Debug("late task", logx.Int("step", i))
		return nil
	}), sched.WithOrder(10), sched.WithClock(sched.LateUpdate)); err != nil {
		return err
	}

	// sequential work queue in FixedUpdate
	q := s.NewQueue(sched.FixedUpdate)
	for i := 0; i < 3; i++ {
		q.Enqueue(sched.Sequential(
			job.Wait(50*time.Millisecond),
			sched.Once(func() error {
				log.Info("queue item finished", logx.Int("item", i))
				return nil
			}),
		))
	}
	if _, err := s.Run(q, sched.WithClock(sched.FixedUpdate)); err != nil {
		return err
	}

	// fan-out over an asynchronous future and a plain countdown
	future := job.Go(func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if _, err := s.Run(sched.Sequential(
		s.Parallel(job.Await(future), job.Steps(5, nil)),
		sched.Once(func() error {
			log.Info("parallel group finished")
			return nil
		}),
	)); err != nil {
		return err
	}

	// a burst of tiny tasks absorbed within one frame budget
	for i := 0; i < 100; i++ {
		if _, err := s.Run(job.Steps(4, nil), sched.WithOptions(sched.OptRun|sched.OptSkipFrames)); err != nil {
			return err
		}
	}

	// a failing task is contained and logged
	if _, err := s.Run(sched.Once(func() error {
		return errors.New("demo failure")
	}), sched.WithOptions(sched.OptRun)); err != nil {
		return err
	}

	// a foreign goroutine hands work to the owner and waits for it
	go func() {
		time.Sleep(200 * time.Millisecond)
		err := s.RunOnOwner(ctx, func() error {
			q.Enqueue(sched.Once(func() error {
				log.Info("work injected from another goroutine ran")
				return nil
			}))
			return nil
		}, true)
		if err != nil {
			log.Warn("injection abandoned", logx.Err(err))
		}
	}()
	return nil
}
