// Package graph provides the core cyclic workflow engine for loopgraph.
package graph

import (
	"maps"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// End is the terminal routing target. Routing to End completes a run.
// It is reserved and cannot be used as a node name.
const End = "__end__"

// Log roles recorded in State.Log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LogEntry is one record in the append-only workflow log.
type LogEntry struct {
	// Source names the node (or caller) that produced the entry.
	Source string `json:"source,omitempty"`

	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// State is the single record threaded through a run.
//
// Nodes never mutate a State in place. They return an Update which the
// engine folds in with Merge. Each field has a fixed merge policy:
//
//   - Task is set once by NewState and never changes.
//   - Log is append-only.
//   - IterationCount only grows, and only refinement-capable nodes bump it.
//   - StepCount and CurrentNode are owned by the engine.
//   - Metadata is overwritten per key.
//   - FinalOutput is overwritten when an update carries one.
type State struct {
	Task           string         `json:"task"`
	Log            []LogEntry     `json:"log,omitempty"`
	CurrentNode    string         `json:"current_node,omitempty"`
	IterationCount int            `json:"iteration_count"`
	StepCount      int            `json:"step_count"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	FinalOutput    string         `json:"final_output,omitempty"`
}

// Update is the partial change a node returns.
// The zero Update leaves a State unchanged.
type Update struct {
	// Log entries are appended in order.
	Log []LogEntry

	// Iterations is added to IterationCount. Negative values are ignored.
	Iterations int

	// Metadata keys overwrite the matching keys of State.Metadata.
	Metadata map[string]any

	// FinalOutput, when non-nil, replaces State.FinalOutput.
	FinalOutput *string
}

// NewState returns a fresh State for task with counters at zero and
// a private copy of metadata.
func NewState(task string, metadata map[string]any) State {
	return State{
		Task:     task,
		Metadata: cloneMap(metadata),
	}
}

// Merge returns s with u applied. Neither argument is modified and the
// result shares no mutable storage with them.
//
// Merge(s, Update{}) is equal to s.
func Merge(s State, u Update) State {
	out := s.Clone()

	if len(u.Log) > 0 {
		out.Log = append(out.Log, u.Log...)
	}
	if u.Iterations > 0 {
		out.IterationCount += u.Iterations
	}
	if len(u.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			out.Metadata[k] = cloneValue(v)
		}
	}
	if u.FinalOutput != nil {
		out.FinalOutput = *u.FinalOutput
	}
	return out
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Log = slices.Clone(s.Log)
	out.Metadata = cloneMap(s.Metadata)
	return out
}

// HasFinalOutput reports whether a final output has been produced.
func (s State) HasFinalOutput() bool {
	return s.FinalOutput != ""
}

// LastLog returns the most recent log entry, if any.
func (s State) LastLog() (LogEntry, bool) {
	if len(s.Log) == 0 {
		return LogEntry{}, false
	}
	return s.Log[len(s.Log)-1], true
}

// Meta returns the raw metadata value stored under key.
func (s State) Meta(key string) (any, bool) {
	v, ok := s.Metadata[key]
	return v, ok
}

// MetaString returns metadata[key] as a string. Non-string scalars are
// converted; anything that cannot be converted yields "", false.
func (s State) MetaString(key string) (string, bool) {
	var out string
	if !s.decodeMeta(key, &out) {
		return "", false
	}
	return out, true
}

// MetaFloat returns metadata[key] as a float64. Numeric strings such as
// "7.5" are accepted.
func (s State) MetaFloat(key string) (float64, bool) {
	var out float64
	if !s.decodeMeta(key, &out) {
		return 0, false
	}
	return out, true
}

// MetaBool returns metadata[key] as a bool. "true", "1" and non-zero
// numbers are accepted.
func (s State) MetaBool(key string) (bool, bool) {
	var out bool
	if !s.decodeMeta(key, &out) {
		return false, false
	}
	return out, true
}

// MetaInto decodes metadata[key] into target, which must be a pointer.
// Maps decode into structs using `mapstructure` or field names.
func (s State) MetaInto(key string, target any) bool {
	return s.decodeMeta(key, target)
}

func (s State) decodeMeta(key string, target any) bool {
	v, ok := s.Metadata[key]
	if !ok || v == nil {
		return false
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return false
	}
	return dec.Decode(v) == nil
}

// cloneMap deep-copies a metadata map. A nil map stays nil.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types that JSON-shaped metadata uses.
// Other values are returned as-is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}

// Output returns a pointer to s for use as Update.FinalOutput.
func Output(s string) *string { return &s }
