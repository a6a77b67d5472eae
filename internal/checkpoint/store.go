package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/linkbridge/internal/types"
)

// Store holds the in-memory record for the current endpoint and writes it to
// one file per endpoint under dir/checkpoints. It has a single writer, the
// tick loop, so it carries no locks.
type Store struct {
	dir      string
	endpoint types.EndpointKey
	record   Record
	resolver types.CheckResolver
}

// NewStore creates a store rooted at dir. Call Open before use.
func NewStore(dir string) *Store {
	return &Store{dir: dir, record: Empty()}
}

func (s *Store) checkpointsDir() string {
	return filepath.Join(s.dir, "checkpoints")
}

// Path returns the file used for endpoint.
func (s *Store) Path(endpoint types.EndpointKey) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(string(endpoint))
	return filepath.Join(s.checkpointsDir(), name+".state")
}

// Open switches to endpoint. The in-memory record is cleared before the new
// file is read, so nothing from the old endpoint can be saved under the new
// one or vice versa.
func (s *Store) Open(endpoint types.EndpointKey) Record {
	s.record = Empty()
	s.endpoint = endpoint
	s.record = s.Load()
	return s.record.Clone()
}

// Endpoint returns the endpoint the store is bound to.
func (s *Store) Endpoint() types.EndpointKey {
	return s.endpoint
}

// Load reads the record for the current endpoint. It never fails: a missing
// or corrupt file yields an empty record.
func (s *Store) Load() Record {
	if s.endpoint == "" {
		return Empty()
	}
	path := s.Path(s.endpoint)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("read checkpoint failed, starting empty", "path", path, "error", err)
		}
		return Empty()
	}
	rec, err := Decode(data)
	if err != nil {
		slog.Warn("corrupt checkpoint, starting empty", "path", path, "error", err)
		return Empty()
	}
	return rec
}

// Save writes the record atomically via temp file + rename.
func (s *Store) Save() error {
	if s.endpoint == "" {
		return nil
	}
	if err := os.MkdirAll(s.checkpointsDir(), 0o755); err != nil {
		return fmt.Errorf("create checkpoints dir: %w", err)
	}
	target := s.Path(s.endpoint)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, s.record.Encode(), 0o644); err != nil {
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp checkpoint: %w", err)
	}
	return nil
}

func (s *Store) save() {
	if err := s.Save(); err != nil {
		slog.Warn("checkpoint save failed", "endpoint", string(s.endpoint), "error", err)
	}
}

// Reset drops all state for the current endpoint and persists the empty record.
func (s *Store) Reset() error {
	s.record = Empty()
	return s.Save()
}

// SetResolver installs the name -> id resolver used by ReportCheck.
func (s *Store) SetResolver(r types.CheckResolver) {
	s.resolver = r
}

// Record returns a copy of the in-memory record.
func (s *Store) Record() Record {
	return s.record.Clone()
}

// LastAppliedIndex returns the highest applied event index, or -1.
func (s *Store) LastAppliedIndex() int64 {
	return s.record.LastAppliedIndex
}

// Advance moves the last applied index forward and persists it. Lower or
// equal indexes are ignored, keeping the index monotonic.
func (s *Store) Advance(index int64) bool {
	if index <= s.record.LastAppliedIndex {
		return false
	}
	s.record.LastAppliedIndex = index
	s.record.AppliedCount++
	s.save()
	return true
}

// ReportCheck resolves name and records its id. It returns the id and true
// only the first time an id is seen; unknown names and repeats return false.
func (s *Store) ReportCheck(name string) (int64, bool) {
	if s.resolver == nil {
		slog.Warn("check reported before names are resolvable", "check", name)
		return 0, false
	}
	id, ok := s.resolver.LocationID(name)
	if !ok {
		slog.Warn("unknown check name", "check", name)
		return 0, false
	}
	if _, seen := s.record.ReportedChecks[id]; seen {
		return id, false
	}
	s.record.ReportedChecks[id] = struct{}{}
	s.save()
	return id, true
}

// MarkReported merges ids learnt from elsewhere and returns the newly added ones.
func (s *Store) MarkReported(ids ...int64) []int64 {
	var added []int64
	for _, id := range ids {
		if _, seen := s.record.ReportedChecks[id]; seen {
			continue
		}
		s.record.ReportedChecks[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) > 0 {
		s.save()
	}
	return added
}

// IsReported reports whether id has been recorded.
func (s *Store) IsReported(id int64) bool {
	_, ok := s.record.ReportedChecks[id]
	return ok
}

// SubState returns one sub-state value.
func (s *Store) SubState(key string) (string, bool) {
	v, ok := s.record.SubState[key]
	return v, ok
}

// SetSubState updates one sub-state value. It is persisted by the next save.
func (s *Store) SetSubState(key, value string) {
	if strings.ContainsAny(key, "=;\n") || strings.ContainsAny(value, ";\n") {
		slog.Warn("rejecting sub-state with reserved characters", "key", key)
		return
	}
	s.record.SubState[key] = value
}
