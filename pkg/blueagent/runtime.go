// Package blueagent is the defender's action runtime. It turns a validated
// registration payload into handlers, shared containers, dispatcher entries
// and the blue reward table, and dispatches action tokens at run time.
package blueagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueaction"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueconfig"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
	"github.com/Mindburn-Labs/decoyrange/pkg/shared"
)

// Options supplies the registries Load resolves names against. Zero values
// select the built-in handlers, the built-in container kinds plus
// shared.KindIsolation, and slog.Default().
type Options struct {
	Registry *blueaction.Registry
	Kinds    *shared.Kinds
	Logger   *slog.Logger
}

// Runtime owns the dispatcher, the shared context and the reward table of
// one environment instance. Registration is fixed once Load returns.
type Runtime struct {
	logger      *slog.Logger
	dispatcher  *actionspace.Dispatcher
	shared      *shared.Context
	rewards     *reward.Table
	fingerprint string
}

// DefaultKinds returns the container kinds available to payloads when no
// registry is supplied.
func DefaultKinds() *shared.Kinds {
	k := shared.NewKinds()
	_ = k.Register(shared.KindIsolation, shared.NewIsolationLedger)
	return k
}

// Load builds a runtime from payload against topo. It is all-or-nothing: on
// any error no runtime is returned and nothing built so far survives.
// Normalization happens on a copy; payload itself is left untouched.
func Load(payload *blueconfig.Payload, topo blueaction.Topology, opts Options) (*Runtime, error) {
	if payload == nil {
		return nil, rangeerr.Invalid("nil blue action payload")
	}
	if topo == nil {
		return nil, rangeerr.Invalid("nil network")
	}
	payload = payload.Clone()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = blueaction.Builtins()
	}
	if opts.Kinds == nil {
		opts.Kinds = DefaultKinds()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blueagent")

	ctx, err := buildShared(payload.SharedData, opts.Kinds)
	if err != nil {
		return nil, err
	}

	dispatcher := actionspace.New(topo)
	entries := make([]reward.Named, 0, len(payload.Actions))
	for _, spec := range payload.Actions {
		kind, err := spec.ActionSpace.Kind()
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		lent, err := ctx.Lend(spec.SharedData)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		h, err := opts.Registry.Build(spec.Handler, blueaction.Deps{
			Network: topo,
			Config:  spec.Config,
			Shared:  lent,
		})
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		if err := dispatcher.Register(spec.Name, h, kind, spec.ActionSpace.Range); err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		entries = append(entries, reward.Named{
			Name:  spec.Name,
			Entry: reward.Entry{Immediate: spec.Reward.Immediate, Recurring: spec.Reward.Recurring},
		})
	}

	table, err := reward.NewTable(entries)
	if err != nil {
		return nil, err
	}
	fingerprint, err := payload.Fingerprint()
	if err != nil {
		return nil, err
	}
	dispatcher.Seal()

	logger.Info("blue runtime loaded",
		"actions", len(entries),
		"capacity", dispatcher.Capacity(),
		"shared", ctx.Names(),
		"fingerprint", fingerprint,
	)
	return &Runtime{
		logger:      logger,
		dispatcher:  dispatcher,
		shared:      ctx,
		rewards:     table,
		fingerprint: fingerprint,
	}, nil
}

func buildShared(specs map[string]blueconfig.SharedSpec, kinds *shared.Kinds) (*shared.Context, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := shared.NewContext()
	for _, name := range names {
		spec := specs[name]
		c, err := kinds.New(spec.Kind, spec.Args)
		if err != nil {
			return nil, fmt.Errorf("shared data %q: %w", name, err)
		}
		if err := ctx.Declare(name, c); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// Dispatch resolves token, runs the handler against the resolved target and
// returns its outcome tagged with the action's display name. A handler's own
// failure is wrapped in rangeerr.ErrHandlerExecution; Succeeded=false is
// returned as a normal outcome.
func (r *Runtime) Dispatch(ctx context.Context, token int) (actionspace.Outcome, error) {
	res, err := r.dispatcher.Resolve(token)
	if err != nil {
		return actionspace.Outcome{}, err
	}
	out, err := res.Entry.Handler.Execute(ctx, res.Target)
	if err != nil {
		if errors.Is(err, rangeerr.ErrHandlerExecution) {
			return actionspace.Outcome{}, err
		}
		return actionspace.Outcome{}, rangeerr.Execution(res.Name(), err)
	}
	out.Name = res.Name()
	out.Target = res.Target
	return out, nil
}

// Reset empties every shared container. Handlers and dispatcher bounds are
// untouched.
func (r *Runtime) Reset() {
	r.shared.Reset()
	r.logger.Debug("shared data reset", "containers", len(r.shared.Names()))
}

// Capacity is the size of the action space.
func (r *Runtime) Capacity() int { return r.dispatcher.Capacity() }

// RewardTable is the blue reward table built at load.
func (r *Runtime) RewardTable() *reward.Table { return r.rewards }

func (r *Runtime) Entries() []actionspace.Entry { return r.dispatcher.Entries() }

// Token maps an action name and target offset back to its token.
func (r *Runtime) Token(name string, index int) (int, error) {
	return r.dispatcher.Token(name, index)
}

func (r *Runtime) Shared() *shared.Context { return r.shared }

// Fingerprint identifies the payload the runtime was loaded from.
func (r *Runtime) Fingerprint() string { return r.fingerprint }
