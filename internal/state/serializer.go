package state

import (
	"fmt"
	"strconv"
	"sync"
)

// Class is a registered store type. Registration gives stores a name that
// survives serialization, so an exported store can be rebuilt without
// knowing its type.
type Class struct {
	name  string
	setup func(*Store)
	opts  []Option
}

var classes = struct {
	sync.RWMutex
	byName map[string]*Class
}{byName: make(map[string]*Class)}

// RegisterClass registers setup under name. A taken name gets a numeric
// suffix, see Class.Name.
func RegisterClass(name string, setup func(*Store), opts ...Option) *Class {
	if name == "" {
		name = "Unknown"
	}

	classes.Lock()
	defer classes.Unlock()

	lookup := name
	for i := 1; classes.byName[lookup] != nil; i++ {
		lookup = name + strconv.Itoa(i)
	}

	c := &Class{name: lookup, setup: setup, opts: opts}
	classes.byName[lookup] = c

	return c
}

func LookupClass(name string) *Class {
	classes.RLock()
	defer classes.RUnlock()

	return classes.byName[name]
}

// Name is the lookup name the class was registered under.
func (c *Class) Name() string { return c.name }

// New creates a store of the class. Options given here come after the
// class's own.
func (c *Class) New(opts ...Option) *Store {
	all := make([]Option, 0, len(c.opts)+len(opts)+1)
	all = append(all, withClass(c))
	all = append(all, c.opts...)
	all = append(all, opts...)

	return New(all...)
}

func (c *Class) fromJSON(json any) (*Store, error) {
	s := c.New()
	if err := s.FromJSON(json); err != nil {
		return nil, err
	}

	return s, nil
}

func (c *Class) setupStore(s *Store) {
	if c.setup != nil {
		c.setup(s)
	}
}

// ValueToJSON encodes a store of a registered class as {className, json};
// anything else is returned unchanged.
func ValueToJSON(value any) any {
	s, ok := value.(*Store)
	if !ok || s == nil || s.class == nil {
		return value
	}

	return map[string]any{
		"className": s.class.name,
		"json":      s.ToJSON(false),
	}
}

// ValueFromJSON rebuilds a store encoded by ValueToJSON. Other values are
// returned unchanged.
func ValueFromJSON(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}

	className, ok := m["className"].(string)
	if !ok {
		return value, nil
	}
	json, ok := m["json"]
	if !ok || json == nil {
		return value, nil
	}

	c := LookupClass(className)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}

	return c.fromJSON(json)
}
