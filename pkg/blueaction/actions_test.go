package blueaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/shared"
)

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New("test")
	_, err := n.AddSubnet("users", "10.0.1.0/24")
	require.NoError(t, err)
	_, err = n.AddSubnet("tiny", "10.0.9.0/30")
	require.NoError(t, err)
	_, err = n.AddHost("user0", "users", network.HostType{Name: "workstation"})
	require.NoError(t, err)
	return n
}

func subnetTarget(t *testing.T, n *network.Network, name string) actionspace.Target {
	t.Helper()
	s, err := n.Subnet(name)
	require.NoError(t, err)
	return actionspace.Target{Kind: actionspace.KindSubnet, Subnet: s}
}

func TestRegistry(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{
		HandlerDeployDecoy, HandlerIsolateDecoy, HandlerIsolateHost,
		HandlerNothing, HandlerRemoveDecoy, HandlerRestoreHost,
	}, r.Names())

	n := testNetwork(t)
	_, err := r.Build("teleport", Deps{Network: n})
	assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)

	custom := actionspace.HandlerFunc(func(context.Context, actionspace.Target) (actionspace.Outcome, error) {
		return actionspace.Outcome{Succeeded: true}, nil
	})
	require.NoError(t, r.Register("custom", func(Deps) (actionspace.Handler, error) { return custom, nil }))
	assert.True(t, r.Has("custom"))
	assert.ErrorIs(t, r.Register("custom", func(Deps) (actionspace.Handler, error) { return custom, nil }),
		rangeerr.ErrInvalidConfiguration)

	h, err := r.Build("custom", Deps{Network: n})
	require.NoError(t, err)
	out, err := h.Execute(context.Background(), actionspace.Target{})
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
}

func TestDecoyConfigValidation(t *testing.T) {
	r := Builtins()
	n := testNetwork(t)

	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"unknown key", map[string]any{"flavour": "honey"}},
		{"bad type", map[string]any{"type": "router"}},
		{"bad port", map[string]any{"services": []any{map[string]any{"name": "http", "port": 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Build(HandlerDeployDecoy, Deps{Network: n, Config: tt.cfg})
			assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)
		})
	}

	_, err := r.Build(HandlerIsolateHost, Deps{Network: n, Config: map[string]any{"type": "server"}})
	assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration, "actions without options reject config")
}

func TestDeployDecoy(t *testing.T) {
	n := testNetwork(t)
	decoys := shared.NewList()
	h, err := Builtins().Build(HandlerDeployDecoy, Deps{
		Network: n,
		Config: map[string]any{
			"type":     "Server",
			"services": []any{map[string]any{"name": "http", "port": 80}},
			"cves":     []any{"CVE-2021-44228"},
		},
		Shared: map[string]shared.Container{SharedDecoyList: decoys},
	})
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), subnetTarget(t, n, "users"))
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.True(t, out.Recurring)
	require.NotEmpty(t, out.CorrelationID)

	decoy, err := n.Host(out.CorrelationID)
	require.NoError(t, err)
	assert.True(t, decoy.Decoy)
	assert.True(t, decoy.Type.IsServer())
	require.Len(t, decoy.Services, 1)
	assert.Equal(t, 80, decoy.Services[0].Port)
	assert.Equal(t, []any{out.CorrelationID}, decoys.Items())

	// A /30 hands out three addresses; the fourth deploy is an unsuccessful outcome.
	tiny := subnetTarget(t, n, "tiny")
	for i := 0; i < 3; i++ {
		out, err = h.Execute(context.Background(), tiny)
		require.NoError(t, err)
		require.True(t, out.Succeeded)
	}
	out, err = h.Execute(context.Background(), tiny)
	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Empty(t, out.CorrelationID)

	_, err = h.Execute(context.Background(), actionspace.Target{Kind: actionspace.KindSubnet})
	assert.Error(t, err)
}

func TestDeployDecoy_WrongSharedType(t *testing.T) {
	_, err := Builtins().Build(HandlerDeployDecoy, Deps{
		Network: testNetwork(t),
		Shared:  map[string]shared.Container{SharedDecoyList: shared.NewSet()},
	})
	assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)
}

func TestIsolateDecoy(t *testing.T) {
	n := testNetwork(t)
	r := Builtins()

	_, err := r.Build(HandlerIsolateDecoy, Deps{Network: n})
	assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration, "isolate_data is required")

	ledger, err := shared.NewIsolationLedger(map[string]any{"max_per_subnet": 1})
	require.NoError(t, err)
	h, err := r.Build(HandlerIsolateDecoy, Deps{
		Network: n,
		Shared:  map[string]shared.Container{SharedIsolateData: ledger},
	})
	require.NoError(t, err)

	users := subnetTarget(t, n, "users")
	out, err := h.Execute(context.Background(), users)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)

	hostsBefore := n.HostCount()
	out, err = h.Execute(context.Background(), users)
	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Equal(t, hostsBefore, n.HostCount(), "a full subnet gets no orphan decoy")
}

func TestRemoveDecoy(t *testing.T) {
	n := testNetwork(t)
	decoys := shared.NewList()
	deps := Deps{Network: n, Shared: map[string]shared.Container{SharedDecoyList: decoys}}

	deploy, err := Builtins().Build(HandlerDeployDecoy, deps)
	require.NoError(t, err)
	remove, err := Builtins().Build(HandlerRemoveDecoy, deps)
	require.NoError(t, err)

	deployed, err := deploy.Execute(context.Background(), subnetTarget(t, n, "users"))
	require.NoError(t, err)
	require.Len(t, n.Decoys(), 1)

	out, err := remove.Execute(context.Background(), actionspace.Target{Kind: actionspace.KindRange, Index: 0})
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, []string{deployed.CorrelationID}, out.Retracts)
	assert.Empty(t, n.Decoys())
	assert.Equal(t, 0, decoys.Len())

	out, err = remove.Execute(context.Background(), actionspace.Target{Kind: actionspace.KindRange, Index: 3})
	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Empty(t, out.Retracts)
}

func TestRemoveDecoy_FreesIsolationSlot(t *testing.T) {
	n := testNetwork(t)
	ledgerC, err := shared.NewIsolationLedger(map[string]any{"max_per_subnet": 1})
	require.NoError(t, err)
	ledger := ledgerC.(*shared.IsolationLedger)
	decoys := shared.NewList()
	deps := Deps{Network: n, Shared: map[string]shared.Container{
		SharedDecoyList:   decoys,
		SharedIsolateData: ledger,
	}}

	isolate, err := Builtins().Build(HandlerIsolateDecoy, deps)
	require.NoError(t, err)
	remove, err := Builtins().Build(HandlerRemoveDecoy, deps)
	require.NoError(t, err)
	users := subnetTarget(t, n, "users")

	out, err := isolate.Execute(context.Background(), users)
	require.NoError(t, err)
	require.True(t, out.Succeeded)
	require.Equal(t, 1, ledger.Len())

	out, err = remove.Execute(context.Background(), actionspace.Target{Kind: actionspace.KindRange, Index: 0})
	require.NoError(t, err)
	require.True(t, out.Succeeded)
	assert.Empty(t, n.Decoys())
	assert.Equal(t, 0, ledger.Len())
	assert.True(t, ledger.HasRoom(users.Subnet))

	out, err = isolate.Execute(context.Background(), users)
	require.NoError(t, err)
	assert.True(t, out.Succeeded, "the subnet has room again once its decoy is gone")
	assert.Len(t, n.Decoys(), 1)
}

func TestIsolateAndRestoreHost(t *testing.T) {
	n := testNetwork(t)
	isolate, err := Builtins().Build(HandlerIsolateHost, Deps{Network: n})
	require.NoError(t, err)
	restore, err := Builtins().Build(HandlerRestoreHost, Deps{Network: n})
	require.NoError(t, err)

	host, err := n.Host("user0")
	require.NoError(t, err)
	target := actionspace.Target{Kind: actionspace.KindHost, Host: host}

	out, err := isolate.Execute(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, IsolationID(host), out.CorrelationID)
	assert.True(t, host.Isolated)

	out, err = isolate.Execute(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, out.Succeeded, "already isolated")

	out, err = restore.Execute(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, []string{IsolationID(host)}, out.Retracts)
	assert.False(t, host.Isolated)

	out, err = restore.Execute(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, out.Succeeded)
}
