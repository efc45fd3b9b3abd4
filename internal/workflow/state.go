// Package workflow implements a small checkpointed graph engine: named steps
// over a versioned conversation state, with an interrupt-before set that pauses
// execution for human input and an explicit resume protocol.
package workflow

// State is the conversation state that flows through the graph, scoped to one
// thread id. It is an append/overwrite key-value bag; how concurrent writes to
// a key merge is decided by the field's reducer in the schema.
type State map[string]any

// Clone creates a shallow copy of the state.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// String returns the string stored under key, or "" when absent or not a string.
func (s State) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// StringSlice returns the string slice stored under key, or nil. Values that
// went through a JSON round-trip ([]any of strings) are converted.
func (s State) StringSlice(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// StringMap returns the string map stored under key, or nil. Values that went
// through a JSON round-trip (map[string]any of strings) are converted.
func (s State) StringMap(key string) map[string]string {
	switch v := s[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if str, ok := item.(string); ok {
				out[k] = str
			}
		}
		return out
	}
	return nil
}

// Reducer decides how a state update merges with the existing value of a field.
type Reducer func(existing, update any) any

// StateField describes one field of the state schema.
type StateField struct {
	Reducer Reducer
}

// StateSchema maps field names to their merge behavior. Fields without an
// entry use OverwriteReducer.
type StateSchema struct {
	fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{fields: make(map[string]StateField)}
}

// AddField registers a field with the given merge behavior.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	if field.Reducer == nil {
		field.Reducer = OverwriteReducer
	}
	s.fields[name] = field
	return s
}

// ApplyUpdate merges an update into the current state using each field's
// reducer and returns the merged copy. The inputs are not mutated.
func (s *StateSchema) ApplyUpdate(current, update State) State {
	result := current.Clone()
	for key, value := range update {
		if field, ok := s.fields[key]; ok {
			result[key] = field.Reducer(result[key], value)
			continue
		}
		result[key] = value
	}
	return result
}

// OverwriteReducer replaces the existing value with the update. This is the
// default "last write wins" policy.
func OverwriteReducer(existing, update any) any {
	return update
}

// ReplaceReducer fully replaces the prior value, never merging. Semantically
// identical to OverwriteReducer; declaring it on a field documents that
// concurrent partial updates of that field are not supported.
func ReplaceReducer(existing, update any) any {
	return update
}

// MergeStringMapReducer merges an update map into the existing map, update
// entries winning on key collision.
func MergeStringMapReducer(existing, update any) any {
	existingMap, ok1 := existing.(map[string]string)
	updateMap, ok2 := update.(map[string]string)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]string, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}
