// Package actionspace maps a flat integer action token onto a registered
// defensive action and a concrete target.
//
// Entries are appended in registration order. Each one owns the half-open
// token range [Lower, Upper); ranges are contiguous, never overlap, and
// together cover exactly [0, Capacity()).
package actionspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// Kind says how a token's offset within an entry maps to a target.
type Kind int

const (
	// KindNone entries take no target and occupy one token.
	KindNone Kind = iota
	// KindHost entries target one host; width is the host count at registration.
	KindHost
	// KindSubnet entries target one subnet; width is the subnet count at registration.
	KindSubnet
	// KindRange entries receive a bounded integer parameter; width is caller supplied.
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHost:
		return "host"
	case KindSubnet:
		return "subnet"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a dispatch kind name. "standalone" is accepted as an
// alias for "none".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "standalone":
		return KindNone, nil
	case "host":
		return KindHost, nil
	case "subnet":
		return KindSubnet, nil
	case "range":
		return KindRange, nil
	default:
		return 0, rangeerr.Invalid("unknown dispatch kind %q", s)
	}
}

// Topology is the live view of the network the dispatcher sizes entries
// against and resolves targets from.
type Topology interface {
	Hosts() []*network.Host
	Subnets() []*network.Subnet
}

// Target is the concrete argument a token resolves to. Only the field that
// matches Kind is set; Index is the offset within the entry for every kind
// except KindNone.
type Target struct {
	Kind   Kind
	Index  int
	Host   *network.Host
	Subnet *network.Subnet
}

func (t Target) String() string {
	switch t.Kind {
	case KindHost:
		if t.Host != nil {
			return "host:" + t.Host.Name
		}
	case KindSubnet:
		if t.Subnet != nil {
			return "subnet:" + t.Subnet.Name
		}
	case KindRange:
		return fmt.Sprintf("range:%d", t.Index)
	}
	return "none"
}

// Outcome is what a handler reports after running.
//
// CorrelationID identifies an ongoing recurring effect (a deployed decoy, an
// isolated host) so that its recurring reward can be attributed and later
// retracted. Retracts lists correlation ids whose effects this action ended.
// Name and Target are filled in by the runtime after resolution.
type Outcome struct {
	Name          string
	Target        Target
	CorrelationID string
	Succeeded     bool
	Recurring     bool
	Retracts      []string
}

// Handler is the single capability every defensive action implements.
// Returning Succeeded=false with a nil error is a normal outcome; a non-nil
// error is a handler execution failure and aborts the tick. Handlers must not
// mutate shared state before returning an error.
type Handler interface {
	Execute(ctx context.Context, target Target) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, target Target) (Outcome, error)

func (f HandlerFunc) Execute(ctx context.Context, target Target) (Outcome, error) {
	return f(ctx, target)
}

// Entry is one registered action and its token range.
type Entry struct {
	Name    string
	Handler Handler
	Kind    Kind
	Lower   int
	Upper   int
}

// Width is the number of tokens the entry owns.
func (e Entry) Width() int {
	return e.Upper - e.Lower
}

// Contains reports whether token falls in [Lower, Upper).
func (e Entry) Contains(token int) bool {
	return token >= e.Lower && token < e.Upper
}

// Resolution is the result of resolving one token.
type Resolution struct {
	Entry  Entry
	Target Target
}

// Name is the display name of the resolved action.
func (r Resolution) Name() string {
	return r.Entry.Name
}
