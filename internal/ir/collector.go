package ir

// CollectorEntryKind tags a collector entry.
type CollectorEntryKind string

const (
	EntryTrace   CollectorEntryKind = "trace"
	EntryWarning CollectorEntryKind = "warning"
)

// CollectorEntry is one diagnostic record.
type CollectorEntry struct {
	Kind    CollectorEntryKind `json:"kind"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Context map[string]string  `json:"context,omitempty"`
}

// Collector gathers non-fatal warnings and optional trace entries during an
// evaluation. A nil *Collector discards everything, so callers that do not
// care can pass nil.
//
// Collector is the only mutable value threaded through the core; it is
// owned by one call chain and never shared across goroutines.
type Collector struct {
	TraceEnabled bool
	Entries      []CollectorEntry
}

// Warn records a warning. ctx is a flat key/value list.
func (c *Collector) Warn(code, message string, ctx ...string) {
	if c == nil {
		return
	}
	c.Entries = append(c.Entries, CollectorEntry{Kind: EntryWarning, Code: code, Message: message, Context: pairs(ctx)})
}

// Trace records a trace entry when tracing is enabled.
func (c *Collector) Trace(code, message string, ctx ...string) {
	if c == nil || !c.TraceEnabled {
		return
	}
	c.Entries = append(c.Entries, CollectorEntry{Kind: EntryTrace, Code: code, Message: message, Context: pairs(ctx)})
}

// Warnings returns the warning entries in record order.
func (c *Collector) Warnings() []CollectorEntry {
	if c == nil {
		return nil
	}
	var out []CollectorEntry
	for _, e := range c.Entries {
		if e.Kind == EntryWarning {
			out = append(out, e)
		}
	}
	return out
}

func pairs(kv []string) map[string]string {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}
