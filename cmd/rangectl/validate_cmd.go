package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/decoyrange/pkg/blueagent"
	"github.com/Mindburn-Labs/decoyrange/pkg/config"
	"github.com/Mindburn-Labs/decoyrange/pkg/detector"
	"github.com/Mindburn-Labs/decoyrange/pkg/red"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

// runValidateCmd implements `rangectl validate`. It builds everything a run
// would build, without playing, and reports the first problem.
//
// Exit codes:
//
//	0 = valid
//	1 = invalid
//	2 = usage error
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	fileFlags(cmd, &cfg)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	fail := func(err error) int {
		_, _ = fmt.Fprintf(stdout, "INVALID: %v\n", err)
		return 1
	}

	files, err := loadFiles(cfg)
	if err != nil {
		return fail(err)
	}
	rt, err := blueagent.Load(files.payload, files.network, blueagent.Options{Logger: cfg.Logger(stderr)})
	if err != nil {
		return fail(err)
	}
	agent, err := red.NewKillChainAgent(files.red, files.network, seed.NewPRNG(0, "red"))
	if err != nil {
		return fail(err)
	}
	if _, err := detector.Build(files.detector, seed.NewPRNG(0, "detector")); err != nil {
		return fail(err)
	}
	if _, err := reward.NewCalculator(rt.RewardTable(), agent.Rewards(), files.policy); err != nil {
		return fail(err)
	}
	if files.red.StartHost != "" {
		if _, err := files.network.Host(files.red.StartHost); err != nil {
			return fail(fmt.Errorf("red start host: %w", err))
		}
	}

	_, _ = fmt.Fprintf(stdout, "OK: %d actions, capacity %d, %d hosts, %d subnets\n",
		len(rt.Entries()), rt.Capacity(), files.network.HostCount(), files.network.SubnetCount())
	_, _ = fmt.Fprintf(stdout, "fingerprint %s\n", rt.Fingerprint())
	return 0
}
