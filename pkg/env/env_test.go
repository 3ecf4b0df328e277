package env

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decoyrange/pkg/alert"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueagent"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueconfig"
	"github.com/Mindburn-Labs/decoyrange/pkg/detector"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/recorder"
	"github.com/Mindburn-Labs/decoyrange/pkg/red"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

const topology = `
name: office
host_types:
  workstation:
    services:
      - {name: ssh, port: 22}
  web_server:
    services:
      - {name: http, port: 80}
subnets:
  - name: users
    prefix: 10.0.1.0/24
    hosts:
      - {name: user0, type: workstation}
      - {name: user1, type: workstation}
  - name: servers
    prefix: 10.0.2.0/24
    hosts:
      - {name: web0, type: web_server}
`

const payload = `
version: "1.0.0"
shared_data:
  decoy_list: list
actions:
  - name: nothing
    handler: nothing
    reward: {immediate: 0, recurring: 0}
    action_space: {type: none}
  - name: deploy
    handler: deploy_decoy
    config:
      type: server
      services:
        - {name: http, port: 80}
    reward: {immediate: 1, recurring: 0.5}
    shared_data: [decoy_list]
    action_space: {type: subnet}
  - name: remove
    handler: remove_decoy
    reward: {immediate: 0, recurring: 0}
    shared_data: [decoy_list]
    action_space: {type: range, range: 2}
`

// MockAgent scripts the attacker.
type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) Act(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockAgent) Latest() (red.HistoryEntry, bool) {
	args := m.Called()
	return args.Get(0).(red.HistoryEntry), args.Bool(1)
}

func (m *MockAgent) History() []red.HistoryEntry {
	args := m.Called()
	return args.Get(0).([]red.HistoryEntry)
}

func (m *MockAgent) Reset(start *network.Host) {
	m.Called(start)
}

func (m *MockAgent) Rewards() map[string]float64 {
	args := m.Called()
	return args.Get(0).(map[string]float64)
}

type fixture struct {
	net     *network.Network
	runtime *blueagent.Runtime
	rewards *reward.Calculator
	agent   *MockAgent
	rec     *recorder.Memory
	env     *Env
}

func newFixture(t *testing.T, horizon int) *fixture {
	t.Helper()
	n, err := network.Parse([]byte(topology))
	require.NoError(t, err)
	p, err := blueconfig.Parse([]byte(payload))
	require.NoError(t, err)
	rt, err := blueagent.Load(p, n, blueagent.Options{})
	require.NoError(t, err)
	calc, err := reward.NewCalculator(rt.RewardTable(), map[string]float64{red.PhaseDiscovery: -1}, reward.DefaultPolicy())
	require.NoError(t, err)

	agent := &MockAgent{}
	agent.On("Reset", mock.Anything).Return()
	rec := recorder.NewMemory()

	e, err := New(Options{
		Network:   n,
		Runtime:   rt,
		Red:       agent,
		Detector:  detector.NewHandler(detector.Perfect{}),
		Rewards:   calc,
		Seeds:     seed.NewReplay(11, 12, 13),
		Horizon:   horizon,
		StartHost: "user0",
		RunID:     "run-test",
		Recorder:  rec,
	})
	require.NoError(t, err)
	return &fixture{net: n, runtime: rt, rewards: calc, agent: agent, rec: rec, env: e}
}

func (f *fixture) host(t *testing.T, name string) *network.Host {
	t.Helper()
	h, err := f.net.Host(name)
	require.NoError(t, err)
	return h
}

func (f *fixture) attack(src, dst *network.Host, action string) red.HistoryEntry {
	return red.HistoryEntry{
		Action:    action,
		Source:    src,
		Target:    dst,
		Succeeded: true,
		Alert:     alert.New(src, []*network.Host{dst}, dst.Services),
	}
}

func TestStep_BeforeReset(t *testing.T) {
	f := newFixture(t, 2)
	assert.Equal(t, StateDone, f.env.State())
	_, err := f.env.Step(context.Background(), 0)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestEpisode(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	obs, err := f.env.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 6), obs)
	assert.Equal(t, StateReady, f.env.State())
	assert.Equal(t, int64(11), f.env.Seed())
	f.agent.AssertCalled(t, "Reset", f.host(t, "user0"))

	f.agent.On("Act", mock.Anything).Return(red.PhaseDiscovery, nil)
	f.agent.On("Latest").Return(f.attack(f.host(t, "user0"), f.host(t, "user1"), red.PhaseDiscovery), true)

	deployUsers, err := f.env.Runtime().Token("deploy", 0)
	require.NoError(t, err)

	res, err := f.env.Step(ctx, deployUsers)
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, "deploy", res.Info.BlueAction)
	assert.Equal(t, "subnet:users", res.Info.BlueTarget)
	assert.True(t, res.Info.BlueSucceeded)
	assert.Equal(t, "user1", res.Info.RedTarget)
	assert.Equal(t, 1, res.Info.Detected)
	assert.Len(t, f.net.Decoys(), 1)
	// blue 1 + recurring 0.5 + red -1
	assert.InDelta(t, 0.5, res.Reward, 1e-9)
	assert.Equal(t, []float64{0, 1, 0, 0, 1, 0}, res.Observation)

	res, err = f.env.Step(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, "nothing", res.Info.BlueAction)
	assert.InDelta(t, 0.5, res.Breakdown.Recurring, 1e-9)
	assert.InDelta(t, -0.5, res.Reward, 1e-9)
	assert.Equal(t, StateDone, f.env.State())

	_, err = f.env.Step(ctx, 0)
	assert.ErrorIs(t, err, ErrEpisodeDone)

	records := f.rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "run-test", records[0].RunID)
	assert.Equal(t, int64(11), records[0].Seed)
	assert.Equal(t, f.runtime.Fingerprint(), records[1].Fingerprint)
	assert.Equal(t, 1, records[1].Tick)

	_, err = f.env.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.net.Decoys())
	assert.Empty(t, f.rewards.ActiveRecurring())
	assert.Equal(t, 1, f.env.Episode())
	assert.Equal(t, 0, f.env.Tick())
}

func TestStep_DecoyHitIsSeparateTerm(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.env.Reset(ctx)
	require.NoError(t, err)

	users, err := f.net.Subnet("users")
	require.NoError(t, err)
	honey, err := f.net.CreateDecoyHost("honey", users, network.HostType{Name: "server", Decoy: true})
	require.NoError(t, err)

	f.agent.On("Act", mock.Anything).Return(red.PhaseDiscovery, nil)
	f.agent.On("Latest").Return(f.attack(f.host(t, "user0"), honey, red.PhaseDiscovery), true)

	res, err := f.env.Step(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Info.AttackedDecoy)
	assert.InDelta(t, -1, res.Breakdown.RedBase, 1e-9)
	assert.InDelta(t, 2, res.Breakdown.DecoyAdjustment, 1e-9)
	assert.InDelta(t, 1, res.Reward, 1e-9)
	assert.Equal(t, make([]float64, 6), res.Observation, "decoys have no observation slot")
	assert.True(t, f.rec.Records()[0].DecoyHit)
}

func TestStep_DispatchOutOfRangeKeepsEpisode(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.env.Reset(ctx)
	require.NoError(t, err)

	_, err = f.env.Step(ctx, f.env.Capacity())
	require.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
	assert.Equal(t, StateReady, f.env.State())
	assert.Equal(t, 0, f.env.Tick())
	f.agent.AssertNotCalled(t, "Act", mock.Anything)
	assert.Empty(t, f.rec.Records())
}

func TestStep_FailureRollsBackRewards(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.env.Reset(ctx)
	require.NoError(t, err)

	boom := errors.New("attacker crashed")
	f.agent.On("Act", mock.Anything).Return("", boom)

	deployUsers, err := f.env.Runtime().Token("deploy", 0)
	require.NoError(t, err)
	_, err = f.env.Step(ctx, deployUsers)
	require.ErrorIs(t, err, boom)

	assert.Empty(t, f.rewards.ActiveRecurring())
	assert.Equal(t, StateDone, f.env.State())
	assert.Empty(t, f.rec.Records())

	_, err = f.env.Step(ctx, 0)
	assert.ErrorIs(t, err, ErrEpisodeDone)

	_, err = f.env.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.net.Decoys())
	assert.Equal(t, StateReady, f.env.State())
}

func TestStep_UnknownRedActionAbortsTick(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.env.Reset(ctx)
	require.NoError(t, err)

	f.agent.On("Act", mock.Anything).Return("exfiltrate", nil)
	entry := f.attack(f.host(t, "user0"), f.host(t, "web0"), "exfiltrate")
	f.agent.On("Latest").Return(entry, true)

	_, err = f.env.Step(ctx, 0)
	assert.ErrorIs(t, err, reward.ErrUnknownAction)
}

func TestStep_RemoveRetractsRecurring(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.env.Reset(ctx)
	require.NoError(t, err)

	f.agent.On("Act", mock.Anything).Return(red.PhaseDiscovery, nil)
	f.agent.On("Latest").Return(f.attack(f.host(t, "user0"), f.host(t, "user1"), red.PhaseDiscovery), true)

	deploy, err := f.env.Runtime().Token("deploy", 1)
	require.NoError(t, err)
	_, err = f.env.Step(ctx, deploy)
	require.NoError(t, err)
	require.Len(t, f.rewards.ActiveRecurring(), 1)

	remove, err := f.env.Runtime().Token("remove", 0)
	require.NoError(t, err)
	res, err := f.env.Step(ctx, remove)
	require.NoError(t, err)
	assert.True(t, res.Info.BlueSucceeded)
	assert.Zero(t, res.Breakdown.Recurring, "retracted on the tick it is removed")
	assert.Empty(t, f.rewards.ActiveRecurring())
	assert.Empty(t, f.net.Decoys())
}

func TestNew_Validates(t *testing.T) {
	f := newFixture(t, 1)
	base := Options{
		Network:  f.net,
		Runtime:  f.runtime,
		Red:      f.agent,
		Detector: detector.Perfect{},
		Rewards:  f.rewards,
		Horizon:  1,
	}

	for name, mutate := range map[string]func(o *Options){
		"no network":   func(o *Options) { o.Network = nil },
		"no runtime":   func(o *Options) { o.Runtime = nil },
		"no red":       func(o *Options) { o.Red = nil },
		"zero horizon": func(o *Options) { o.Horizon = 0 },
		"bad start":    func(o *Options) { o.StartHost = "nowhere" },
	} {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			_, err := New(opts)
			assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)
		})
	}

	e, err := New(base)
	require.NoError(t, err)
	assert.NotEmpty(t, e.RunID())
}

func TestReset_SeedsExhausted(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.env.Reset(ctx)
		require.NoError(t, err)
	}
	_, err := f.env.Reset(ctx)
	assert.ErrorIs(t, err, seed.ErrExhausted)
}
