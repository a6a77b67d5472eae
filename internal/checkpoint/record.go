// Package checkpoint persists what the bridge has already applied and
// reported so a restart never re-applies effects or re-reports checks.
package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const fieldCount = 5

var ErrMalformed = errors.New("checkpoint: malformed record")

// Record is the persisted state. LastAppliedIndex never decreases and
// ReportedChecks only grows.
type Record struct {
	LastAppliedIndex int64
	ReportedChecks   map[int64]struct{}
	AppliedCount     int64
	SubState         map[string]string
}

// Empty returns the record used when nothing has been persisted yet.
func Empty() Record {
	return Record{
		LastAppliedIndex: -1,
		ReportedChecks:   make(map[int64]struct{}),
		SubState:         make(map[string]string),
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := Record{
		LastAppliedIndex: r.LastAppliedIndex,
		AppliedCount:     r.AppliedCount,
		ReportedChecks:   make(map[int64]struct{}, len(r.ReportedChecks)),
		SubState:         make(map[string]string, len(r.SubState)),
	}
	for id := range r.ReportedChecks {
		out.ReportedChecks[id] = struct{}{}
	}
	for k, v := range r.SubState {
		out.SubState[k] = v
	}
	return out
}

// CheckIDs returns the reported ids in ascending order.
func (r Record) CheckIDs() []int64 {
	ids := make([]int64, 0, len(r.ReportedChecks))
	for id := range r.ReportedChecks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Encode renders the five newline-delimited fields: last applied index,
// comma-joined check ids, applied counter, a reserved blank field, and the
// sub-state string.
func (r Record) Encode() []byte {
	ids := r.CheckIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	lines := []string{
		strconv.FormatInt(r.LastAppliedIndex, 10),
		strings.Join(parts, ","),
		strconv.FormatInt(r.AppliedCount, 10),
		"",
		encodeSubState(r.SubState),
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// Decode parses data written by Encode.
func Decode(data []byte) (Record, error) {
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) < fieldCount {
		return Record{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, fieldCount, len(lines))
	}
	rec := Empty()

	idx, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: last index: %v", ErrMalformed, err)
	}
	rec.LastAppliedIndex = idx

	if raw := strings.TrimSpace(lines[1]); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("%w: check id %q: %v", ErrMalformed, part, err)
			}
			rec.ReportedChecks[id] = struct{}{}
		}
	}

	if raw := strings.TrimSpace(lines[2]); raw != "" {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: counter: %v", ErrMalformed, err)
		}
		rec.AppliedCount = count
	}

	rec.SubState = decodeSubState(lines[4])
	return rec, nil
}

// Sub-state is a ';'-separated list of key=value pairs in key order.
func encodeSubState(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ";")
}

func decodeSubState(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(strings.TrimSpace(raw), ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
