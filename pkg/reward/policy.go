package reward

import (
	"fmt"
	"math"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// DefaultDecoyExpr flips a red penalty into a blue gain of the same size
// when the attacker hits a decoy.
const DefaultDecoyExpr = "2.0 * abs_base"

// Policy configures the decoy-interaction adjustment applied on top of a
// red action's base reward when its target was a decoy.
//
// DecoyExpr is a CEL expression over base (double), abs_base (double) and
// action (string) that must evaluate to a number. When it is empty the
// adjustment is DecoyBonus.
type Policy struct {
	DecoyBonus float64 `yaml:"decoy_bonus" json:"decoy_bonus"`
	DecoyExpr  string  `yaml:"decoy_expr" json:"decoy_expr"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{DecoyExpr: DefaultDecoyExpr}
}

// LoadPolicy reads a policy file over DefaultPolicy, so keys the file leaves
// out keep their defaults. An explicit decoy_expr: "" selects DecoyBonus.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read reward policy: %w", err)
	}
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, rangeerr.Invalid("parse reward policy %s: %v", path, err)
	}
	return p, nil
}

type decoyAdjuster struct {
	bonus float64
	prg   cel.Program
}

func (p Policy) compile() (*decoyAdjuster, error) {
	adj := &decoyAdjuster{bonus: p.DecoyBonus}
	if p.DecoyExpr == "" {
		return adj, nil
	}

	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("base", types.DoubleType),
			decls.NewVariable("abs_base", types.DoubleType),
			decls.NewVariable("action", types.StringType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ast, issues := env.Compile(p.DecoyExpr)
	if issues != nil && issues.Err() != nil {
		return nil, rangeerr.Invalid("decoy expression: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, rangeerr.Invalid("decoy expression program: %v", err)
	}
	adj.prg = prg
	return adj, nil
}

func (d *decoyAdjuster) adjust(action string, base float64) (float64, error) {
	if d.prg == nil {
		return d.bonus, nil
	}
	out, _, err := d.prg.Eval(map[string]any{
		"base":     base,
		"abs_base": math.Abs(base),
		"action":   action,
	})
	if err != nil {
		return 0, fmt.Errorf("decoy expression: %w", err)
	}
	switch v := out.Value().(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("decoy expression returned %T, want a number", v)
	}
}
