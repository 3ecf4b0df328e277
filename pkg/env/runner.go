package env

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
	"github.com/Mindburn-Labs/decoyrange/pkg/telemetry"
)

// Policy picks the blue token for the next tick.
type Policy interface {
	Act(ctx context.Context, obs []float64, capacity int) (int, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, obs []float64, capacity int) (int, error)

func (f PolicyFunc) Act(ctx context.Context, obs []float64, capacity int) (int, error) {
	return f(ctx, obs, capacity)
}

// RandomPolicy samples tokens uniformly. It is the baseline defender.
type RandomPolicy struct {
	rng *seed.PRNG
}

func NewRandomPolicy(rng *seed.PRNG) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

func (p *RandomPolicy) Act(_ context.Context, _ []float64, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, fmt.Errorf("random policy: empty action space")
	}
	return p.rng.Intn(capacity), nil
}

// Reseed implements Reseeder so the runner can tie the policy to the
// episode seed.
func (p *RandomPolicy) Reseed(rng *seed.PRNG) { p.rng = rng }

// EpisodeSummary aggregates one finished episode.
type EpisodeSummary struct {
	Episode       int     `json:"episode"`
	Seed          int64   `json:"seed"`
	Ticks         int     `json:"ticks"`
	TotalReward   float64 `json:"total_reward"`
	BlueSuccesses int     `json:"blue_successes"`
	RedSuccesses  int     `json:"red_successes"`
	DecoyHits     int     `json:"decoy_hits"`
	Detections    int     `json:"detections"`
}

// Runner plays whole episodes against an Env.
type Runner struct {
	env      *Env
	policy   Policy
	episodes int
	limiter  *rate.Limiter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTickRate paces ticks to at most perSecond, with no bursting. Zero or
// less leaves ticks unpaced.
func WithTickRate(perSecond float64) RunnerOption {
	return func(r *Runner) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithRunnerMetrics(m *telemetry.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(e *Env, policy Policy, episodes int, opts ...RunnerOption) (*Runner, error) {
	if e == nil || policy == nil {
		return nil, fmt.Errorf("runner: env and policy are required")
	}
	if episodes <= 0 {
		return nil, fmt.Errorf("runner: episodes must be > 0, got %d", episodes)
	}
	r := &Runner{env: e, policy: policy, episodes: episodes, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r, nil
}

// Run plays every episode in order and returns their summaries. It stops at
// the first error; summaries of completed episodes are still returned.
func (r *Runner) Run(ctx context.Context) ([]EpisodeSummary, error) {
	summaries := make([]EpisodeSummary, 0, r.episodes)
	for i := 0; i < r.episodes; i++ {
		sum, err := r.runEpisode(ctx)
		if err != nil {
			return summaries, fmt.Errorf("episode %d: %w", i, err)
		}
		summaries = append(summaries, sum)
		r.metrics.RecordEpisode(ctx, sum.TotalReward)
		r.logger.InfoContext(ctx, "episode finished",
			"episode", sum.Episode,
			"seed", sum.Seed,
			"total_reward", sum.TotalReward,
			"decoy_hits", sum.DecoyHits,
		)
	}
	return summaries, nil
}

func (r *Runner) runEpisode(ctx context.Context) (EpisodeSummary, error) {
	obs, err := r.env.Reset(ctx)
	if err != nil {
		return EpisodeSummary{}, err
	}
	if rs, ok := r.policy.(Reseeder); ok {
		rs.Reseed(r.env.RNG().Child("policy"))
	}

	sum := EpisodeSummary{Episode: r.env.Episode(), Seed: r.env.Seed()}
	for {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return sum, err
			}
		}
		token, err := r.policy.Act(ctx, obs, r.env.Capacity())
		if err != nil {
			return sum, fmt.Errorf("policy: %w", err)
		}
		res, err := r.env.Step(ctx, token)
		if err != nil {
			return sum, err
		}

		sum.Ticks++
		sum.TotalReward += res.Reward
		sum.Detections += res.Info.Detected
		if res.Info.BlueSucceeded {
			sum.BlueSuccesses++
		}
		if res.Info.RedSucceeded {
			sum.RedSuccesses++
		}
		if res.Info.AttackedDecoy {
			sum.DecoyHits++
		}
		obs = res.Observation
		if res.Done {
			return sum, nil
		}
	}
}
