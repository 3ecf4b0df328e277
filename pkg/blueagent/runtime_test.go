package blueagent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueaction"
	"github.com/Mindburn-Labs/decoyrange/pkg/blueconfig"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
)

// fiveHostsThreeSubnets builds a range with 5 hosts spread over 3 subnets.
func fiveHostsThreeSubnets(t *testing.T) *network.Network {
	t.Helper()
	n := network.New("test")
	for i := 0; i < 3; i++ {
		_, err := n.AddSubnet(fmt.Sprintf("subnet%d", i), fmt.Sprintf("10.0.%d.0/24", i))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := n.AddHost(fmt.Sprintf("host%d", i), fmt.Sprintf("subnet%d", i%3), network.HostType{Name: "workstation"})
		require.NoError(t, err)
	}
	return n
}

const scenarioPayload = `
version: "1.0.0"
shared_data:
  decoy_list: list
actions:
  - name: decoy_deploy
    handler: deploy_decoy
    reward: {immediate: -10, recurring: -1}
    shared_data: [decoy_list]
    action_space: {type: subnet}
  - name: isolate
    handler: isolate_host
    reward: {immediate: -5, recurring: -2}
    action_space: {type: host}
`

func loadScenario(t *testing.T) (*Runtime, *network.Network) {
	t.Helper()
	n := fiveHostsThreeSubnets(t)
	p, err := blueconfig.Parse([]byte(scenarioPayload))
	require.NoError(t, err)
	rt, err := Load(p, n, Options{})
	require.NoError(t, err)
	return rt, n
}

func TestLoad_Bounds(t *testing.T) {
	rt, _ := loadScenario(t)

	assert.Equal(t, 8, rt.Capacity())
	entries := rt.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, [2]int{0, 3}, [2]int{entries[0].Lower, entries[0].Upper})
	assert.Equal(t, [2]int{3, 8}, [2]int{entries[1].Lower, entries[1].Upper})

	e, ok := rt.RewardTable().Lookup("isolate")
	require.True(t, ok)
	assert.Equal(t, reward.Entry{Immediate: -5, Recurring: -2}, e)
	assert.Len(t, rt.Fingerprint(), 64)
}

func TestDispatch(t *testing.T) {
	rt, n := loadScenario(t)
	ctx := context.Background()

	out, err := rt.Dispatch(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "isolate", out.Name)
	assert.Equal(t, "host1", out.Target.Host.Name)
	assert.True(t, out.Succeeded)
	h, _ := n.Host("host1")
	assert.True(t, h.Isolated)

	out, err = rt.Dispatch(ctx, 4)
	require.NoError(t, err)
	assert.False(t, out.Succeeded, "unsuccessful outcome is not an error")

	out, err = rt.Dispatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "decoy_deploy", out.Name)
	assert.True(t, out.Recurring)
	assert.Len(t, n.Decoys(), 1)

	// A decoy was added, but the host entry keeps its registered width.
	assert.Equal(t, 8, rt.Capacity())
	out, err = rt.Dispatch(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "host4", out.Target.Host.Name)

	_, err = rt.Dispatch(ctx, 8)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
}

func TestReset_EmptiesSharedOnly(t *testing.T) {
	rt, _ := loadScenario(t)

	_, err := rt.Dispatch(context.Background(), 0)
	require.NoError(t, err)
	_, err = rt.Dispatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"decoy_list": 2}, rt.Shared().Sizes())

	rt.Reset()
	assert.Equal(t, map[string]int{"decoy_list": 0}, rt.Shared().Sizes())
	assert.Equal(t, 8, rt.Capacity())
	assert.Len(t, rt.Entries(), 2)
}

func TestLoad_Failures(t *testing.T) {
	n := fiveHostsThreeSubnets(t)
	action := func(name, handler, kind string, width int) blueconfig.ActionSpec {
		return blueconfig.ActionSpec{
			Name:        name,
			Handler:     handler,
			ActionSpace: blueconfig.DispatchSpec{Type: kind, Range: width},
		}
	}

	tests := []struct {
		name    string
		payload *blueconfig.Payload
		want    error
	}{
		{
			name:    "nil payload",
			payload: nil,
			want:    rangeerr.ErrInvalidConfiguration,
		},
		{
			name: "unknown handler",
			payload: &blueconfig.Payload{Version: "1.0.0", Actions: []blueconfig.ActionSpec{
				action("a", "teleport", "none", 0),
			}},
			want: rangeerr.ErrInvalidConfiguration,
		},
		{
			name: "duplicate display name",
			payload: &blueconfig.Payload{Version: "1.0.0", Actions: []blueconfig.ActionSpec{
				action("a", "nothing", "none", 0),
				action("a", "isolate_host", "host", 0),
			}},
			want: rangeerr.ErrDuplicateActionName,
		},
		{
			name: "zero range width",
			payload: &blueconfig.Payload{Version: "1.0.0", Actions: []blueconfig.ActionSpec{
				action("a", "nothing", "range", 0),
			}},
			want: rangeerr.ErrInvalidConfiguration,
		},
		{
			name: "unknown shared kind",
			payload: &blueconfig.Payload{
				Version:    "1.0.0",
				SharedData: map[string]blueconfig.SharedSpec{"q": {Kind: "queue"}},
				Actions:    []blueconfig.ActionSpec{action("a", "nothing", "none", 0)},
			},
			want: rangeerr.ErrInvalidConfiguration,
		},
		{
			name: "missing required shared data",
			payload: &blueconfig.Payload{Version: "1.0.0", Actions: []blueconfig.ActionSpec{
				action("remove", "remove_decoy", "range", 3),
			}},
			want: rangeerr.ErrInvalidConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := Load(tt.payload, n, Options{})
			assert.Nil(t, rt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDispatch_HandlerFailureIsWrapped(t *testing.T) {
	reg := blueaction.NewRegistry()
	boom := errors.New("target vanished")
	require.NoError(t, reg.Register("flaky", func(blueaction.Deps) (actionspace.Handler, error) {
		return actionspace.HandlerFunc(func(context.Context, actionspace.Target) (actionspace.Outcome, error) {
			return actionspace.Outcome{}, boom
		}), nil
	}))

	p := &blueconfig.Payload{Version: "1.0.0", Actions: []blueconfig.ActionSpec{{
		Name:        "flaky",
		Handler:     "flaky",
		ActionSpace: blueconfig.DispatchSpec{Type: "none"},
	}}}
	rt, err := Load(p, fiveHostsThreeSubnets(t), Options{Registry: reg})
	require.NoError(t, err)

	_, err = rt.Dispatch(context.Background(), 0)
	assert.ErrorIs(t, err, rangeerr.ErrHandlerExecution)
	assert.ErrorIs(t, err, boom)
}

func TestLoad_IsolationContainer(t *testing.T) {
	p, err := blueconfig.Parse([]byte(`
version: "1.0.0"
shared_data:
  isolate_data: {kind: decoy_isolation, args: {max_per_subnet: 1}}
actions:
  - name: isolate_decoy
    handler: isolate_decoy
    reward: {immediate: -3, recurring: -1}
    shared_data: [isolate_data]
    action_space: {type: subnet}
`))
	require.NoError(t, err)
	rt, err := Load(p, fiveHostsThreeSubnets(t), Options{})
	require.NoError(t, err)

	first, err := rt.Dispatch(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, first.Succeeded)
	second, err := rt.Dispatch(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, second.Succeeded)

	rt.Reset()
	third, err := rt.Dispatch(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, third.Succeeded, "reset frees the subnet's isolation slot")
}

func TestLoad_LeavesPayloadUntouched(t *testing.T) {
	p := &blueconfig.Payload{
		Version:    " 1.0.0 ",
		SharedData: map[string]blueconfig.SharedSpec{" decoy_list ": {Kind: "list"}},
		Actions: []blueconfig.ActionSpec{{
			Name:        " decoy_deploy ",
			Handler:     " deploy_decoy ",
			SharedData:  []string{" decoy_list "},
			ActionSpace: blueconfig.DispatchSpec{Type: "subnet"},
		}},
	}
	rt, err := Load(p, fiveHostsThreeSubnets(t), Options{})
	require.NoError(t, err)

	_, err = rt.Token("decoy_deploy", 0)
	assert.NoError(t, err)
	assert.Equal(t, []string{"decoy_list"}, rt.Shared().Names())

	assert.Equal(t, " decoy_deploy ", p.Actions[0].Name)
	assert.Equal(t, " deploy_decoy ", p.Actions[0].Handler)
	assert.Equal(t, []string{" decoy_list "}, p.Actions[0].SharedData)
	assert.Contains(t, p.SharedData, " decoy_list ")
	assert.NotContains(t, p.SharedData, "decoy_list")
}
