package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/decoyrange/pkg/config"
	"github.com/Mindburn-Labs/decoyrange/pkg/detector"
	"github.com/Mindburn-Labs/decoyrange/pkg/env"
	"github.com/Mindburn-Labs/decoyrange/pkg/recorder"
	"github.com/Mindburn-Labs/decoyrange/pkg/red"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
	"github.com/Mindburn-Labs/decoyrange/pkg/telemetry"
)

// runRunCmd implements `rangectl run`.
//
// Exit codes:
//
//	0 = every episode completed
//	1 = an episode failed
//	2 = configuration error
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	fileFlags(cmd, &cfg)

	seeds := int64List(cfg.Seeds)
	var jsonOutput bool
	cmd.IntVar(&cfg.Episodes, "episodes", cfg.Episodes, "Number of episodes")
	cmd.IntVar(&cfg.Horizon, "horizon", cfg.Horizon, "Ticks per episode")
	cmd.Int64Var(&cfg.RootSeed, "seed", cfg.RootSeed, "Root seed episode seeds are derived from")
	cmd.Var(&seeds, "seeds", "Comma separated episode seeds to replay (overrides --seed)")
	cmd.Float64Var(&cfg.TickRate, "tick-rate", cfg.TickRate, "Maximum ticks per second (0 = unpaced)")
	cmd.StringVar(&cfg.RecorderDSN, "recorder", cfg.RecorderDSN, "Tick recorder: memory:, sqlite:<path>, postgres://..., redis://...")
	cmd.StringVar(&cfg.RunID, "run-id", cfg.RunID, "Run identifier stamped on recorded ticks")
	cmd.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	cmd.BoolVar(&jsonOutput, "json", false, "Output episode summaries as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg.Seeds = seeds
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cfg.Logger(stderr)
	files, err := loadFiles(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	rt, err := files.runtime(ctx, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	agent, err := red.NewKillChainAgent(files.red, files.network, seed.NewPRNG(cfg.RootSeed, "red"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	det, err := detector.Build(files.detector, seed.NewPRNG(cfg.RootSeed, "detector"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	calc, err := reward.NewCalculator(rt.RewardTable(), agent.Rewards(), files.policy)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.TelemetryEnabled
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.ServiceName = cfg.ServiceName
	tcfg.ServiceVersion = version
	provider, err := telemetry.New(ctx, tcfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()
	metrics, err := telemetry.NewMetrics(provider.Meter())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
		return 2
	}

	rec, err := recorder.Open(ctx, cfg.RecorderDSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = rec.Close() }()

	e, err := env.New(env.Options{
		Network:   files.network,
		Runtime:   rt,
		Red:       agent,
		Detector:  det,
		Rewards:   calc,
		Seeds:     cfg.SeedSequence(),
		Horizon:   cfg.Horizon,
		StartHost: files.red.StartHost,
		RunID:     cfg.RunID,
		Recorder:  rec,
		Metrics:   metrics,
		Tracer:    provider.Tracer(),
		Logger:    logger,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	runner, err := env.NewRunner(e, env.NewRandomPolicy(seed.NewPRNG(cfg.RootSeed, "policy")), cfg.Episodes,
		env.WithTickRate(cfg.TickRate),
		env.WithRunnerMetrics(metrics),
		env.WithRunnerLogger(logger),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	summaries, runErr := runner.Run(ctx)
	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"run_id":      e.RunID(),
			"fingerprint": rt.Fingerprint(),
			"episodes":    summaries,
		})
	} else {
		printSummaries(stdout, e.RunID(), rt.Fingerprint(), summaries)
	}
	if runErr != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}

func printSummaries(w io.Writer, runID, fingerprint string, summaries []env.EpisodeSummary) {
	_, _ = fmt.Fprintf(w, "run %s  payload %s\n", runID, fingerprint)
	_, _ = fmt.Fprintf(w, "%-8s %-20s %6s %10s %6s %6s %6s\n", "EPISODE", "SEED", "TICKS", "REWARD", "BLUE", "RED", "DECOY")
	var total float64
	for _, s := range summaries {
		total += s.TotalReward
		_, _ = fmt.Fprintf(w, "%-8d %-20d %6d %10.2f %6d %6d %6d\n",
			s.Episode, s.Seed, s.Ticks, s.TotalReward, s.BlueSuccesses, s.RedSuccesses, s.DecoyHits)
	}
	if len(summaries) > 0 {
		_, _ = fmt.Fprintf(w, "mean reward %.2f over %d episodes\n", total/float64(len(summaries)), len(summaries))
	}
}
