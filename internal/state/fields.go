package state

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/AnatoleLucet/sigtree/internal"
)

// Codec converts a field between its JSON form and its in-memory value.
type Codec struct {
	FromJSON func(s *Store, json any) (any, error)
	ToJSON   func(s *Store, value any, includeDefaults bool) any
}

type field struct {
	name  string
	codec Codec
	def   any

	// JSON form of the initial value, omitted from ToJSON(false)
	defJSON any

	value any
}

// DefineState declares a serialized field initialized from def.
// It panics when def cannot be decoded.
func (s *Store) DefineState(name string, codec Codec, def any) {
	if strings.ContainsAny(name, routeSeparator+ImplicitPrefix+pathSeparator) {
		panic(fmt.Errorf("state field %q: reserved character", name))
	}

	value, err := codec.FromJSON(s, def)
	if err != nil {
		panic(fmt.Errorf("state field %q: %w", name, err))
	}

	if _, ok := s.fields[name]; !ok {
		s.fieldOrder = append(s.fieldOrder, name)
	}

	f := &field{name: name, codec: codec, def: def, value: value}
	s.fields[name] = f

	if err := s.linkStore(name, value); err != nil {
		panic(err)
	}

	f.defJSON = codec.ToJSON(s, value, false)
}

// Alias serializes field under jsonName.
func (s *Store) Alias(field, jsonName string) {
	s.aliases[field] = jsonName
}

func (s *Store) jsonName(field string) string {
	if name, ok := s.aliases[field]; ok {
		return name
	}

	return field
}

// Fields returns the declared field names in declaration order.
func (s *Store) Fields() []string {
	return slices.Clone(s.fieldOrder)
}

// Get reads a field and records the read on the active binder.
func (s *Store) Get(name string) any {
	internal.RecordEvent(s, name)

	if f, ok := s.fields[name]; ok {
		return f.value
	}

	return nil
}

// Set writes a field. Inside an action the value is stored and watchers are
// notified. Outside an action a mutable store dispatches an implicit action
// instead, and any other store fails with ErrOutsideAction.
func (s *Store) Set(name string, value any) error {
	f, ok := s.fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	if !internal.ActionActive() {
		_, err := s.ensureAction(name, value)
		return err
	}

	return s.assign(f, value)
}

func (s *Store) assign(f *field, value any) error {
	old := f.value
	if internal.Equal(old, value) {
		return nil
	}

	if err := s.linkStore(f.name, value); err != nil {
		return err
	}

	f.value = value
	internal.RecordChange(s, f.name, value, old)

	return nil
}

// FromJSON loads every field from json, falling back to field defaults.
// Outside an action it dispatches an INIT action.
func (s *Store) FromJSON(json any) error {
	if !internal.ActionActive() {
		return s.Init(json)
	}

	return s.fromJSON(json)
}

func (s *Store) fromJSON(json any) error {
	m, _ := json.(map[string]any)

	for _, name := range s.fieldOrder {
		f := s.fields[name]

		raw, ok := m[s.jsonName(name)]
		if !ok {
			raw = f.def
		}

		value, err := f.codec.FromJSON(s, raw)
		if err != nil {
			return fmt.Errorf("state field %q: %w", name, err)
		}

		if err := s.assign(f, value); err != nil {
			return err
		}
	}

	return nil
}

// ToJSON exports the fields. Unless includeDefaults is set, fields still
// equal to their initial value are left out. Every field read is tracked.
func (s *Store) ToJSON(includeDefaults bool) map[string]any {
	json := make(map[string]any, len(s.fieldOrder))

	for _, name := range s.fieldOrder {
		f := s.fields[name]
		internal.RecordEvent(s, name)

		value := f.codec.ToJSON(s, f.value, includeDefaults)
		if includeDefaults || !reflect.DeepEqual(value, f.defJSON) {
			json[s.jsonName(name)] = value
		}
	}

	return json
}

// ByVal stores a shallow copy of the JSON value.
var ByVal = Codec{
	FromJSON: func(_ *Store, json any) (any, error) { return shallowClone(json), nil },
	ToJSON:   func(_ *Store, value any, _ bool) any { return shallowClone(value) },
}

// BySimple stores the JSON value as is.
var BySimple = Codec{
	FromJSON: func(_ *Store, json any) (any, error) { return json, nil },
	ToJSON:   func(_ *Store, value any, _ bool) any { return value },
}

// ByNumber stores a float64.
var ByNumber = Codec{
	FromJSON: func(_ *Store, json any) (any, error) { return toNumber(json) },
	ToJSON: func(_ *Store, value any, _ bool) any {
		n, _ := toNumber(value)
		return n
	},
}

// ByBool stores a bool. The string "false" decodes to false.
var ByBool = Codec{
	FromJSON: func(_ *Store, json any) (any, error) { return toBoolean(json), nil },
	ToJSON:   func(_ *Store, value any, _ bool) any { return toBoolean(value) },
}

// ByCustom decodes with parse, given def when the JSON value is missing,
// and encodes with serialize.
func ByCustom(parse func(s *Store, json any) (any, error), serialize func(s *Store, value any) any, def any) Codec {
	return Codec{
		FromJSON: func(s *Store, json any) (any, error) {
			if json == nil {
				json = def
			}
			return parse(s, json)
		},
		ToJSON: func(s *Store, value any, _ bool) any { return serialize(s, value) },
	}
}

// ByRef stores a sub-store of class, created even when the JSON value is empty.
func ByRef(class *Class) Codec {
	return Codec{
		FromJSON: func(_ *Store, json any) (any, error) {
			return class.fromJSON(json)
		},
		ToJSON: refToJSON,
	}
}

// ByOptionalRef is ByRef that leaves the field nil for an empty JSON value.
func ByOptionalRef(class *Class) Codec {
	return Codec{
		FromJSON: func(_ *Store, json any) (any, error) {
			if isEmptyJSON(json) {
				return nil, nil
			}
			return class.fromJSON(json)
		},
		ToJSON: refToJSON,
	}
}

func refToJSON(_ *Store, value any, includeDefaults bool) any {
	st, _ := value.(*Store)
	if st == nil {
		return nil
	}

	return st.ToJSON(includeDefaults)
}

func isEmptyJSON(json any) bool {
	switch v := json.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case bool:
		return !v
	case string:
		return v == ""
	}

	return false
}

func shallowClone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return maps.Clone(x)
	case []any:
		return slices.Clone(x)
	}

	return v
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}

	return 0, fmt.Errorf("cannot convert %T to a number", v)
}

func toBoolean(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != "" && b != "false"
	case float64:
		return b != 0 && b == b
	case int:
		return b != 0
	}

	return true
}
