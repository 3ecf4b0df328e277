package blueaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/shared"
)

// Built-in handler names.
const (
	HandlerNothing      = "nothing"
	HandlerDeployDecoy  = "deploy_decoy"
	HandlerIsolateDecoy = "isolate_decoy"
	HandlerRemoveDecoy  = "remove_decoy"
	HandlerIsolateHost  = "isolate_host"
	HandlerRestoreHost  = "restore_host"
)

// Shared data names the built-in actions understand.
const (
	SharedDecoyList   = "decoy_list"
	SharedIsolateData = "isolate_data"
)

// DecoyConfig configures the decoy a deploy action materializes.
type DecoyConfig struct {
	// Type is "server" or "workstation". Defaults to "server".
	Type     string            `yaml:"type"`
	Services []network.Service `yaml:"services"`
	CVEs     []string          `yaml:"cves"`
}

func (c DecoyConfig) hostType() network.HostType {
	return network.HostType{
		Name:     c.Type,
		Services: c.Services,
		Decoy:    true,
		CVEs:     c.CVEs,
	}
}

func decodeDecoyConfig(raw map[string]any) (DecoyConfig, error) {
	var cfg DecoyConfig
	if err := DecodeConfig(raw, &cfg); err != nil {
		return cfg, err
	}
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	switch cfg.Type {
	case "":
		cfg.Type = "server"
	case "server", "workstation":
	default:
		return cfg, rangeerr.Invalid("decoy type must be server or workstation, got %q", cfg.Type)
	}
	for _, s := range cfg.Services {
		if s.Name == "" || s.Port <= 0 || s.Port > 65535 {
			return cfg, rangeerr.Invalid("decoy service %q: bad name or port %d", s.Name, s.Port)
		}
	}
	return cfg, nil
}

// noConfig rejects any static configuration for actions that take none.
func noConfig(raw map[string]any) error {
	var empty struct{}
	return DecodeConfig(raw, &empty)
}

func newNothing(deps Deps) (actionspace.Handler, error) {
	if err := noConfig(deps.Config); err != nil {
		return nil, err
	}
	return actionspace.HandlerFunc(func(context.Context, actionspace.Target) (actionspace.Outcome, error) {
		return actionspace.Outcome{Succeeded: true}, nil
	}), nil
}

// DeployDecoy materializes a decoy host on the target subnet. The decoy's
// name doubles as the correlation id of its recurring effect.
type DeployDecoy struct {
	net    Topology
	cfg    DecoyConfig
	decoys *shared.List
}

func newDeployDecoy(deps Deps) (actionspace.Handler, error) {
	cfg, err := decodeDecoyConfig(deps.Config)
	if err != nil {
		return nil, err
	}
	decoys, err := Container[*shared.List](deps, SharedDecoyList, false)
	if err != nil {
		return nil, err
	}
	return &DeployDecoy{net: deps.Network, cfg: cfg, decoys: decoys}, nil
}

func (a *DeployDecoy) Execute(_ context.Context, target actionspace.Target) (actionspace.Outcome, error) {
	if target.Subnet == nil {
		return actionspace.Outcome{}, errors.New("deploy_decoy needs a subnet target")
	}
	name := uuid.NewString()
	if _, err := a.net.CreateDecoyHost(name, target.Subnet, a.cfg.hostType()); err != nil {
		if errors.Is(err, network.ErrAddressExhausted) {
			return actionspace.Outcome{Recurring: true}, nil
		}
		return actionspace.Outcome{}, err
	}
	if a.decoys != nil {
		a.decoys.Append(name)
	}
	return actionspace.Outcome{CorrelationID: name, Succeeded: true, Recurring: true}, nil
}

// IsolateDecoy deploys a decoy only while the target subnet is under the
// per-subnet limit recorded in the shared isolation ledger.
type IsolateDecoy struct {
	net    Topology
	cfg    DecoyConfig
	ledger *shared.IsolationLedger
	decoys *shared.List
}

func newIsolateDecoy(deps Deps) (actionspace.Handler, error) {
	cfg, err := decodeDecoyConfig(deps.Config)
	if err != nil {
		return nil, err
	}
	ledger, err := Container[*shared.IsolationLedger](deps, SharedIsolateData, true)
	if err != nil {
		return nil, err
	}
	decoys, err := Container[*shared.List](deps, SharedDecoyList, false)
	if err != nil {
		return nil, err
	}
	return &IsolateDecoy{net: deps.Network, cfg: cfg, ledger: ledger, decoys: decoys}, nil
}

func (a *IsolateDecoy) Execute(_ context.Context, target actionspace.Target) (actionspace.Outcome, error) {
	if target.Subnet == nil {
		return actionspace.Outcome{}, errors.New("isolate_decoy needs a subnet target")
	}
	if !a.ledger.HasRoom(target.Subnet) {
		return actionspace.Outcome{Recurring: true}, nil
	}
	name := uuid.NewString()
	host, err := a.net.CreateDecoyHost(name, target.Subnet, a.cfg.hostType())
	if err != nil {
		if errors.Is(err, network.ErrAddressExhausted) {
			return actionspace.Outcome{Recurring: true}, nil
		}
		return actionspace.Outcome{}, err
	}
	a.ledger.Admit(host, target.Subnet)
	if a.decoys != nil {
		a.decoys.Append(name)
	}
	return actionspace.Outcome{CorrelationID: name, Succeeded: true, Recurring: true}, nil
}

// RemoveDecoy tears down the decoy at the target index of the shared decoy
// list and retracts its recurring effect. An empty slot is an unsuccessful
// outcome. When isolate_data is shared the decoy's isolation slot is freed.
type RemoveDecoy struct {
	net    Topology
	decoys *shared.List
	ledger *shared.IsolationLedger
}

func newRemoveDecoy(deps Deps) (actionspace.Handler, error) {
	if err := noConfig(deps.Config); err != nil {
		return nil, err
	}
	decoys, err := Container[*shared.List](deps, SharedDecoyList, true)
	if err != nil {
		return nil, err
	}
	ledger, err := Container[*shared.IsolationLedger](deps, SharedIsolateData, false)
	if err != nil {
		return nil, err
	}
	return &RemoveDecoy{net: deps.Network, decoys: decoys, ledger: ledger}, nil
}

func (a *RemoveDecoy) Execute(_ context.Context, target actionspace.Target) (actionspace.Outcome, error) {
	item, ok := a.decoys.At(target.Index)
	if !ok {
		return actionspace.Outcome{}, nil
	}
	name, ok := item.(string)
	if !ok {
		return actionspace.Outcome{}, fmt.Errorf("decoy list holds %T, want string", item)
	}
	host := a.lookup(name)
	if err := a.net.RemoveHost(name); err != nil && !errors.Is(err, network.ErrHostNotFound) {
		return actionspace.Outcome{}, err
	}
	if a.ledger != nil && host != nil {
		a.ledger.Release(host)
	}
	a.decoys.RemoveAt(target.Index)
	return actionspace.Outcome{Succeeded: true, Retracts: []string{name}}, nil
}

func (a *RemoveDecoy) lookup(name string) *network.Host {
	for _, h := range a.net.Hosts() {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// IsolationID is the correlation id of a host's isolation effect.
func IsolationID(h *network.Host) string {
	return "isolation:" + h.Name
}

func newIsolateHost(deps Deps) (actionspace.Handler, error) {
	if err := noConfig(deps.Config); err != nil {
		return nil, err
	}
	net := deps.Network
	return actionspace.HandlerFunc(func(_ context.Context, target actionspace.Target) (actionspace.Outcome, error) {
		if target.Host == nil {
			return actionspace.Outcome{}, errors.New("isolate_host needs a host target")
		}
		if !net.Isolate(target.Host) {
			return actionspace.Outcome{Recurring: true}, nil
		}
		return actionspace.Outcome{CorrelationID: IsolationID(target.Host), Succeeded: true, Recurring: true}, nil
	}), nil
}

func newRestoreHost(deps Deps) (actionspace.Handler, error) {
	if err := noConfig(deps.Config); err != nil {
		return nil, err
	}
	net := deps.Network
	return actionspace.HandlerFunc(func(_ context.Context, target actionspace.Target) (actionspace.Outcome, error) {
		if target.Host == nil {
			return actionspace.Outcome{}, errors.New("restore_host needs a host target")
		}
		if !net.Restore(target.Host) {
			return actionspace.Outcome{}, nil
		}
		return actionspace.Outcome{Succeeded: true, Retracts: []string{IsolationID(target.Host)}}, nil
	}), nil
}
