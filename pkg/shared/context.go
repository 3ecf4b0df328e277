package shared

import (
	"sort"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// Context maps declared names to containers for one environment instance.
type Context struct {
	containers map[string]Container
}

func NewContext() *Context {
	return &Context{containers: make(map[string]Container)}
}

// Declare binds name to c. Names are declared once.
func (c *Context) Declare(name string, container Container) error {
	if name == "" || container == nil {
		return rangeerr.Invalid("shared data needs a name and a container")
	}
	if _, ok := c.containers[name]; ok {
		return rangeerr.Invalid("shared data %q declared twice", name)
	}
	c.containers[name] = container
	return nil
}

// Get returns the container declared under name.
func (c *Context) Get(name string) (Container, bool) {
	v, ok := c.containers[name]
	return v, ok
}

// Lend returns the containers for the given names, failing on the first
// undeclared one.
func (c *Context) Lend(names []string) (map[string]Container, error) {
	out := make(map[string]Container, len(names))
	for _, name := range names {
		v, ok := c.containers[name]
		if !ok {
			return nil, rangeerr.Invalid("shared data %q is not declared", name)
		}
		out[name] = v
	}
	return out, nil
}

// Reset empties every container in place.
func (c *Context) Reset() {
	for _, v := range c.containers {
		v.Clear()
	}
}

// Names lists declared names in sorted order.
func (c *Context) Names() []string {
	out := make([]string, 0, len(c.containers))
	for name := range c.containers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Sizes reports the element count of every container.
func (c *Context) Sizes() map[string]int {
	out := make(map[string]int, len(c.containers))
	for name, v := range c.containers {
		out[name] = v.Len()
	}
	return out
}
