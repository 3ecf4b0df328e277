package blueconfig

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// SupportedVersions is the payload version constraint this build accepts.
const SupportedVersions = "^1.0.0"

const schemaURL = "https://decoyrange.local/schemas/blue-actions.schema.json"

//go:embed schema.json
var schemaSource string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			schemaErr = fmt.Errorf("blue action schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("blue action schema compile failed: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Load reads and parses a payload file.
func Load(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blue action config: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates data against the payload schema, decodes it strictly,
// normalizes names and checks cross-references. Every failure wraps
// rangeerr.ErrInvalidConfiguration except duplicate action names, which
// wrap rangeerr.ErrDuplicateActionName.
func Parse(data []byte) (*Payload, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, rangeerr.Invalid("parse blue action config: %v", err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	var p Payload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, rangeerr.Invalid("decode blue action config: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateSchema(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return rangeerr.Invalid("blue action config is not JSON compatible: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return rangeerr.Invalid("blue action config: %v", err)
	}
	if err := s.Validate(v); err != nil {
		return rangeerr.Invalid("blue action config failed schema validation: %v", err)
	}
	return nil
}

// Validate normalizes the payload in place and checks what the schema
// cannot: the version constraint, dispatch kinds and widths, unique display
// names and shared data references.
func (p *Payload) Validate() error {
	v, err := semver.NewVersion(strings.TrimSpace(p.Version))
	if err != nil {
		return rangeerr.Invalid("version %q: %v", p.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("blueconfig: bad version constraint: %w", err)
	}
	if !constraint.Check(v) {
		return rangeerr.Invalid("version %s does not satisfy %s", v, SupportedVersions)
	}
	if len(p.Actions) == 0 {
		return rangeerr.Invalid("no actions declared")
	}

	shared := make(map[string]SharedSpec, len(p.SharedData))
	for raw, spec := range p.SharedData {
		name := NormalizeName(raw)
		if name == "" || strings.TrimSpace(spec.Kind) == "" {
			return rangeerr.Invalid("shared data %q needs a name and a kind", name)
		}
		if _, dup := shared[name]; dup {
			return rangeerr.Invalid("shared data %q is declared more than once after normalization", name)
		}
		shared[name] = spec
	}
	p.SharedData = shared

	seen := make(map[string]struct{}, len(p.Actions))
	for i := range p.Actions {
		a := &p.Actions[i]
		a.Name = NormalizeName(a.Name)
		a.Handler = strings.TrimSpace(a.Handler)
		if a.Name == "" || a.Handler == "" {
			return rangeerr.Invalid("action %d needs a name and a handler", i)
		}
		if _, dup := seen[a.Name]; dup {
			return rangeerr.Duplicate(a.Name)
		}
		seen[a.Name] = struct{}{}

		kind, err := a.ActionSpace.Kind()
		if err != nil {
			return fmt.Errorf("action %q: %w", a.Name, err)
		}
		if kind == actionspace.KindRange && a.ActionSpace.Range <= 0 {
			return rangeerr.Invalid("action %q: range width must be > 0, got %d", a.Name, a.ActionSpace.Range)
		}
		for j, dep := range a.SharedData {
			dep = NormalizeName(dep)
			if _, ok := shared[dep]; !ok {
				return rangeerr.Invalid("action %q: shared data %q is not declared", a.Name, dep)
			}
			a.SharedData[j] = dep
		}
	}
	return nil
}

// NormalizeName trims and NFC-normalizes a display name so that visually
// identical names collide.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Fingerprint is the hex SHA-256 of the payload's RFC 8785 canonical JSON.
// Two payloads that define the same action space share a fingerprint
// regardless of key order or formatting.
func (p *Payload) Fingerprint() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
