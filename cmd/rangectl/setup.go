package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/decoyrange/pkg/blueagent"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueconfig"
	"github.com/Mindburn-Labs/decoyrange/pkg/config"
	"github.com/Mindburn-Labs/decoyrange/pkg/detector"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/red"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
)

// fileFlags binds the configuration file flags shared by every subcommand.
func fileFlags(cmd *flag.FlagSet, cfg *config.Config) {
	cmd.StringVar(&cfg.TopologyPath, "topology", cfg.TopologyPath, "Network topology YAML")
	cmd.StringVar(&cfg.BlueActionsPath, "blue", cfg.BlueActionsPath, "Blue action registration payload YAML")
	cmd.StringVar(&cfg.RedPath, "red", cfg.RedPath, "Red agent YAML (default: built-in attacker)")
	cmd.StringVar(&cfg.DetectorPath, "detector", cfg.DetectorPath, "Detector YAML (default: perfect detector)")
	cmd.StringVar(&cfg.RewardPolicyPath, "reward-policy", cfg.RewardPolicyPath, "Reward policy YAML (default: 2.0 * abs_base)")
}

// int64List is a comma separated flag value.
type int64List []int64

func (l *int64List) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func (l *int64List) Set(s string) error {
	*l = (*l)[:0]
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", part, err)
		}
		*l = append(*l, v)
	}
	return nil
}

// loaded is every declarative file, parsed and validated.
type loaded struct {
	network  *network.Network
	payload  *blueconfig.Payload
	red      red.Config
	detector detector.Config
	policy   reward.Policy
}

func loadFiles(cfg config.Config) (*loaded, error) {
	n, err := network.Load(cfg.TopologyPath)
	if err != nil {
		return nil, err
	}
	payload, err := blueconfig.Load(cfg.BlueActionsPath)
	if err != nil {
		return nil, err
	}

	l := &loaded{
		network:  n,
		payload:  payload,
		red:      red.DefaultConfig(),
		detector: detector.DefaultConfig(),
		policy:   reward.DefaultPolicy(),
	}
	if cfg.RedPath != "" {
		if l.red, err = red.LoadConfig(cfg.RedPath); err != nil {
			return nil, err
		}
	}
	if cfg.DetectorPath != "" {
		if l.detector, err = detector.LoadConfig(cfg.DetectorPath); err != nil {
			return nil, err
		}
	}
	if cfg.RewardPolicyPath != "" {
		if l.policy, err = reward.LoadPolicy(cfg.RewardPolicyPath); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *loaded) runtime(ctx context.Context, logger *slog.Logger) (*blueagent.Runtime, error) {
	rt, err := blueagent.Load(l.payload, l.network, blueagent.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "action space ready", "capacity", rt.Capacity())
	return rt, nil
}
