package actionspace

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

type staticTopology struct {
	hosts   []*network.Host
	subnets []*network.Subnet
}

func (s *staticTopology) Hosts() []*network.Host     { return s.hosts }
func (s *staticTopology) Subnets() []*network.Subnet { return s.subnets }

func newTopology(hosts, subnets int) *staticTopology {
	topo := &staticTopology{}
	for i := 0; i < subnets; i++ {
		topo.subnets = append(topo.subnets, &network.Subnet{Name: fmt.Sprintf("subnet%d", i)})
	}
	for i := 0; i < hosts; i++ {
		topo.hosts = append(topo.hosts, &network.Host{Name: fmt.Sprintf("host%d", i)})
	}
	return topo
}

var noop = HandlerFunc(func(_ context.Context, _ Target) (Outcome, error) {
	return Outcome{Succeeded: true}, nil
})

func TestDispatcher_DecoyThenIsolate(t *testing.T) {
	d := New(newTopology(5, 3))
	require.NoError(t, d.Register("decoy_deploy", noop, KindSubnet, 0))
	require.NoError(t, d.Register("isolate", noop, KindHost, 0))

	entries := d.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Lower)
	assert.Equal(t, 3, entries[0].Upper)
	assert.Equal(t, 3, entries[1].Lower)
	assert.Equal(t, 8, entries[1].Upper)
	assert.Equal(t, 8, d.Capacity())

	res, err := d.Resolve(4)
	require.NoError(t, err)
	assert.Equal(t, "isolate", res.Name())
	assert.Equal(t, 1, res.Target.Index)
	assert.Equal(t, "host1", res.Target.Host.Name)

	res, err = d.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, "isolate", res.Name())
	assert.Equal(t, 4, res.Target.Index)

	res, err = d.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "decoy_deploy", res.Name())
	assert.Equal(t, "subnet2", res.Target.Subnet.Name)

	_, err = d.Resolve(8)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
	_, err = d.Resolve(-1)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
}

func TestDispatcher_EmptyResolveFails(t *testing.T) {
	d := New(newTopology(1, 1))
	_, err := d.Resolve(0)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
}

func TestDispatcher_RangeWidth(t *testing.T) {
	d := New(newTopology(2, 1))
	require.NoError(t, d.Register("nothing", noop, KindNone, 0))

	for _, width := range []int{0, -3} {
		err := d.Register("remove", noop, KindRange, width)
		assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)
		assert.Equal(t, 1, d.Capacity(), "failed registration leaves capacity unchanged")
		assert.Len(t, d.Entries(), 1)
	}

	require.NoError(t, d.Register("remove", noop, KindRange, 4))
	assert.Equal(t, 5, d.Capacity())

	res, err := d.Resolve(3)
	require.NoError(t, err)
	assert.Equal(t, KindRange, res.Target.Kind)
	assert.Equal(t, 2, res.Target.Index)
	assert.Nil(t, res.Target.Host)
}

func TestDispatcher_RegisterRejects(t *testing.T) {
	d := New(newTopology(0, 2))

	assert.ErrorIs(t, d.Register("", noop, KindNone, 0), rangeerr.ErrInvalidConfiguration)
	assert.ErrorIs(t, d.Register("x", nil, KindNone, 0), rangeerr.ErrInvalidConfiguration)
	assert.ErrorIs(t, d.Register("x", noop, Kind(42), 0), rangeerr.ErrInvalidConfiguration)
	assert.ErrorIs(t, d.Register("isolate", noop, KindHost, 0), rangeerr.ErrInvalidConfiguration, "no hosts to target")

	require.NoError(t, d.Register("x", noop, KindSubnet, 0))
	assert.ErrorIs(t, d.Register("x", noop, KindNone, 0), rangeerr.ErrDuplicateActionName)
	assert.Equal(t, 2, d.Capacity())

	d.Seal()
	assert.ErrorIs(t, d.Register("y", noop, KindNone, 0), rangeerr.ErrInvalidConfiguration)
	assert.Equal(t, 2, d.Capacity())
}

func TestDispatcher_WidthsAreFixedAtRegistration(t *testing.T) {
	topo := newTopology(3, 1)
	d := New(topo)
	require.NoError(t, d.Register("isolate", noop, KindHost, 0))

	// A decoy appears after registration; the entry keeps its width.
	topo.hosts = append(topo.hosts, &network.Host{Name: "decoy", Decoy: true})
	assert.Equal(t, 3, d.Capacity())
	res, err := d.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "host2", res.Target.Host.Name)

	// Shrinking below a resolved index is a handler execution failure.
	topo.hosts = topo.hosts[:1]
	_, err = d.Resolve(2)
	assert.ErrorIs(t, err, rangeerr.ErrHandlerExecution)
}

func TestDispatcher_Token(t *testing.T) {
	d := New(newTopology(5, 3))
	require.NoError(t, d.Register("decoy_deploy", noop, KindSubnet, 0))
	require.NoError(t, d.Register("isolate", noop, KindHost, 0))

	tok, err := d.Token("isolate", 4)
	require.NoError(t, err)
	assert.Equal(t, 7, tok)

	_, err = d.Token("isolate", 5)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
	_, err = d.Token("missing", 0)
	assert.ErrorIs(t, err, rangeerr.ErrDispatchOutOfRange)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"none", KindNone},
		{"standalone", KindNone},
		{"Host", KindHost},
		{" subnet ", KindSubnet},
		{"range", KindRange},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		if tt.in == tt.want.String() {
			assert.Equal(t, tt.in, got.String())
		}
	}

	_, err := ParseKind("cluster")
	assert.ErrorIs(t, err, rangeerr.ErrInvalidConfiguration)
}
