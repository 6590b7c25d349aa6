package insight

import (
	"sort"
	"strings"
	"time"
)

// TimeRange bounds a request to an observation window. A zero Start or End
// leaves that side unbounded.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether both bounds are unset.
func (tr TimeRange) IsZero() bool {
	return tr.Start.IsZero() && tr.End.IsZero()
}

// Request describes one insight to resolve. Requests are values: they are
// hashed into a cache key and never stored.
type Request struct {
	Kind         Kind              `json:"kind"`
	SubjectID    string            `json:"subjectId,omitempty"`
	TimeRange    *TimeRange        `json:"timeRange,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`
}

// CacheKey derives the canonical cache key for the request. Parameters are
// sorted by name before joining so two requests that differ only in map
// insertion order produce identical keys; this determinism is the load-bearing
// invariant of the whole cache. Keys stay human-readable so prefix-scoped
// clearing (e.g. busting one subject) works.
func (r Request) CacheKey() string {
	var b strings.Builder
	b.WriteString(string(r.Kind))
	if r.SubjectID != "" {
		b.WriteString(":subject:")
		b.WriteString(r.SubjectID)
	}
	if r.TimeRange != nil && !r.TimeRange.IsZero() {
		b.WriteString(":range:")
		b.WriteString(formatBound(r.TimeRange.Start))
		b.WriteString("-")
		b.WriteString(formatBound(r.TimeRange.End))
	}
	if len(r.Parameters) > 0 {
		names := make([]string, 0, len(r.Parameters))
		for name := range r.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(":")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(r.Parameters[name])
		}
	}
	return b.String()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format(time.RFC3339)
}

// window unpacks the optional time range into explicit bounds.
func (r Request) window() (time.Time, time.Time) {
	if r.TimeRange == nil {
		return time.Time{}, time.Time{}
	}
	return r.TimeRange.Start, r.TimeRange.End
}
