// Package env is the episode orchestrator. It drives one tick at a time:
// blue dispatch, one attacker action, reward accounting, detection and
// observation, then the tick counter.
package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/alert"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueagent"
	"github.com/Mindburn-Labs/decoyrange/pkg/detector"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/recorder"
	"github.com/Mindburn-Labs/decoyrange/pkg/red"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
	"github.com/Mindburn-Labs/decoyrange/pkg/telemetry"
)

var (
	// ErrEpisodeDone is returned by Step when the episode has ended or has
	// not been started. Call Reset.
	ErrEpisodeDone = errors.New("env: episode done, reset required")
	// ErrStepInProgress is returned when Step or Reset is re-entered.
	ErrStepInProgress = errors.New("env: step in progress")
)

// State is the orchestrator lifecycle.
type State string

const (
	StateReady    State = "READY"
	StateStepping State = "STEPPING"
	StateDone     State = "DONE"
)

// Reseeder is implemented by collaborators that draw randomness per
// episode.
type Reseeder interface {
	Reseed(rng *seed.PRNG)
}

// Options wires an Env. Network, Runtime, Red, Detector and Rewards are
// required; everything else has a default.
type Options struct {
	Network  *network.Network
	Runtime  *blueagent.Runtime
	Red      red.Agent
	Detector detector.Detector
	Rewards  *reward.Calculator

	// Seeds supplies one seed per episode. Defaults to a derived sequence
	// from root seed 0.
	Seeds seed.Sequence
	// Horizon is the number of ticks per episode.
	Horizon int
	// StartHost names the attacker's first foothold. Empty picks a user
	// host at random each episode.
	StartHost string
	// RunID tags recorded ticks. Defaults to a random UUID.
	RunID string

	Recorder recorder.Recorder
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Info is the per-tick evaluation detail returned with every step.
type Info struct {
	Episode       int
	Tick          int
	BlueAction    string
	BlueTarget    string
	BlueSucceeded bool
	RedAction     string
	RedSource     string
	RedTarget     string
	RedSucceeded  bool
	AttackedDecoy bool
	Detected      int
}

// StepResult is what Step returns for a completed tick.
type StepResult struct {
	Observation []float64
	Reward      float64
	Breakdown   reward.Breakdown
	Done        bool
	Info        Info
}

// Env is one environment instance. It is single threaded: a tick runs to
// completion before the next begins, and nothing is shared with other
// instances.
type Env struct {
	net      *network.Network
	runtime  *blueagent.Runtime
	red      red.Agent
	detector detector.Detector
	rewards  *reward.Calculator
	observer *detector.HistoryObserver
	seeds    seed.Sequence

	horizon   int
	startHost string
	runID     string

	recorder recorder.Recorder
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	state   State
	episode int
	tick    int
	seed    int64
	rng     *seed.PRNG
}

// New validates opts and returns an Env in StateDone; call Reset to start
// the first episode.
func New(opts Options) (*Env, error) {
	switch {
	case opts.Network == nil:
		return nil, rangeerr.Invalid("env: network is required")
	case opts.Runtime == nil:
		return nil, rangeerr.Invalid("env: blue runtime is required")
	case opts.Red == nil:
		return nil, rangeerr.Invalid("env: red agent is required")
	case opts.Detector == nil:
		return nil, rangeerr.Invalid("env: detector is required")
	case opts.Rewards == nil:
		return nil, rangeerr.Invalid("env: reward calculator is required")
	case opts.Horizon <= 0:
		return nil, rangeerr.Invalid("env: horizon must be > 0, got %d", opts.Horizon)
	}
	if opts.StartHost != "" {
		if _, err := opts.Network.Host(opts.StartHost); err != nil {
			return nil, rangeerr.Invalid("env: start host: %v", err)
		}
	}
	if opts.Seeds == nil {
		opts.Seeds = seed.NewDerived(0, "episodes")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("decoyrange/env")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Env{
		net:       opts.Network,
		runtime:   opts.Runtime,
		red:       opts.Red,
		detector:  opts.Detector,
		rewards:   opts.Rewards,
		observer:  detector.NewHistoryObserver(opts.Network.NonDecoyHosts()),
		seeds:     opts.Seeds,
		horizon:   opts.Horizon,
		startHost: opts.StartHost,
		runID:     opts.RunID,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    logger.With("component", "env", "run_id", opts.RunID),
		state:     StateDone,
		episode:   -1,
	}, nil
}

// Reset starts a new episode and returns the initial observation.
func (e *Env) Reset(ctx context.Context) ([]float64, error) {
	if e.state == StateStepping {
		return nil, ErrStepInProgress
	}
	s, err := e.seeds.Next()
	if err != nil {
		return nil, fmt.Errorf("env: next episode seed: %w", err)
	}

	e.seed = s
	e.rng = seed.NewPRNG(s, "episode")
	if r, ok := e.red.(Reseeder); ok {
		r.Reseed(e.rng.Child("red"))
	}
	if r, ok := e.detector.(Reseeder); ok {
		r.Reseed(e.rng.Child("detector"))
	}

	e.net.Reset()
	e.runtime.Reset()
	e.rewards.Reset()

	start, err := e.pickStart()
	if err != nil {
		return nil, err
	}
	e.red.Reset(start)

	e.episode++
	e.tick = 0
	e.state = StateReady

	e.logger.InfoContext(ctx, "episode reset",
		"episode", e.episode,
		"seed", s,
		"start_host", start.Name,
	)
	return e.observer.Reset(), nil
}

func (e *Env) pickStart() (*network.Host, error) {
	if e.startHost != "" {
		return e.net.Host(e.startHost)
	}
	candidates := e.net.UserHosts()
	if len(candidates) == 0 {
		candidates = e.net.NonDecoyHosts()
	}
	if len(candidates) == 0 {
		return nil, rangeerr.Invalid("env: network has no hosts to start from")
	}
	return candidates[e.rng.Child("start").Intn(len(candidates))], nil
}

// Step runs one tick with the blue action token.
//
// A dispatch failure leaves the episode READY; nothing was mutated. Any
// later failure rolls back reward accounting and ends the episode, since
// the network and shared data already carry the blue action's effect.
func (e *Env) Step(ctx context.Context, token int) (StepResult, error) {
	switch e.state {
	case StateDone:
		return StepResult{}, ErrEpisodeDone
	case StateStepping:
		return StepResult{}, ErrStepInProgress
	}
	e.state = StateStepping
	began := time.Now()

	ctx, span := e.tracer.Start(ctx, "env.Step", trace.WithAttributes(
		attribute.Int("episode", e.episode),
		attribute.Int("tick", e.tick),
		attribute.Int("token", token),
	))
	defer span.End()

	// (1) blue
	out, err := e.runtime.Dispatch(ctx, token)
	if err != nil {
		e.state = StateReady
		return StepResult{}, e.fail(ctx, span, "dispatch", err)
	}

	res, err := e.advance(ctx, out)
	if err != nil {
		e.rewards.Rollback()
		e.state = StateDone
		return StepResult{}, e.fail(ctx, span, "tick", err)
	}
	e.rewards.Commit()

	// (6) tick counter
	e.tick++
	res.Done = e.tick >= e.horizon
	if res.Done {
		e.state = StateDone
	} else {
		e.state = StateReady
	}

	span.SetAttributes(
		attribute.String("blue.action", res.Info.BlueAction),
		attribute.String("red.action", res.Info.RedAction),
		attribute.Float64("reward", res.Reward),
	)
	e.metrics.RecordTick(ctx, telemetry.Tick{
		BlueAction: res.Info.BlueAction,
		RedAction:  res.Info.RedAction,
		Reward:     res.Reward,
		DecoyHit:   res.Info.AttackedDecoy,
		Duration:   time.Since(began),
	})
	e.record(ctx, res)
	e.logger.DebugContext(ctx, "tick",
		"episode", e.episode,
		"tick", res.Info.Tick,
		"blue", res.Info.BlueAction,
		"red", res.Info.RedAction,
		"reward", res.Reward,
	)
	return res, nil
}

// advance runs steps (2) to (5) of a tick. Reward accounting is staged;
// the caller commits or rolls back.
func (e *Env) advance(ctx context.Context, out actionspace.Outcome) (StepResult, error) {
	// (2) red
	if _, err := e.red.Act(ctx); err != nil {
		return StepResult{}, fmt.Errorf("red act: %w", err)
	}
	entry, ok := e.red.Latest()
	if !ok {
		return StepResult{}, errors.New("red act: no history entry")
	}
	attackedDecoy := entry.Target != nil && entry.Target.Decoy

	// (3) reward accounting
	if err := e.rewards.RecordBlue(out.Name, out.CorrelationID, out.Succeeded, out.Recurring); err != nil {
		return StepResult{}, err
	}
	for _, id := range out.Retracts {
		e.rewards.Retract(id)
	}
	if err := e.rewards.RecordRed(entry.Action, attackedDecoy); err != nil {
		return StepResult{}, err
	}

	// (4) detection and observation
	var alerts []*alert.Alert
	if entry.Alert != nil {
		alerts = append(alerts, entry.Alert)
	}
	detected := e.detector.Detect(alerts)
	obs := e.observer.Observe(detected)

	// (5) reward
	breakdown := e.rewards.Breakdown()

	return StepResult{
		Observation: obs,
		Reward:      breakdown.Total(),
		Breakdown:   breakdown,
		Info: Info{
			Episode:       e.episode,
			Tick:          e.tick,
			BlueAction:    out.Name,
			BlueTarget:    out.Target.String(),
			BlueSucceeded: out.Succeeded,
			RedAction:     entry.Action,
			RedSource:     hostName(entry.Source),
			RedTarget:     hostName(entry.Target),
			RedSucceeded:  entry.Succeeded,
			AttackedDecoy: attackedDecoy,
			Detected:      len(detected),
		},
	}, nil
}

func (e *Env) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.RecordFailure(ctx, stage, err)
	return err
}

func (e *Env) record(ctx context.Context, res StepResult) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(ctx, recorder.TickRecord{
		RunID:         e.runID,
		Episode:       res.Info.Episode,
		Tick:          res.Info.Tick,
		Seed:          e.seed,
		Fingerprint:   e.runtime.Fingerprint(),
		BlueAction:    res.Info.BlueAction,
		BlueTarget:    res.Info.BlueTarget,
		BlueSucceeded: res.Info.BlueSucceeded,
		RedAction:     res.Info.RedAction,
		RedSource:     res.Info.RedSource,
		RedTarget:     res.Info.RedTarget,
		RedSucceeded:  res.Info.RedSucceeded,
		DecoyHit:      res.Info.AttackedDecoy,
		Reward:        res.Reward,
		Breakdown:     res.Breakdown,
		RecordedAt:    time.Now(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to record tick", "tick", res.Info.Tick, "error", err)
	}
}

func hostName(h *network.Host) string {
	if h == nil {
		return ""
	}
	return h.Name
}

// Capacity is the size of the blue action space.
func (e *Env) Capacity() int { return e.runtime.Capacity() }

// ObservationSize is the length of every observation vector.
func (e *Env) ObservationSize() int { return e.observer.Size() }

func (e *Env) State() State                { return e.state }
func (e *Env) Episode() int                { return e.episode }
func (e *Env) Tick() int                   { return e.tick }
func (e *Env) Horizon() int                { return e.horizon }
func (e *Env) Seed() int64                 { return e.seed }
func (e *Env) RunID() string               { return e.runID }
func (e *Env) Runtime() *blueagent.Runtime { return e.runtime }

// RNG is the current episode's generator. Policies may draw children from
// it so whole runs replay from the seed sequence.
func (e *Env) RNG() *seed.PRNG { return e.rng }
