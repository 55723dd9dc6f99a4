package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"conduit/internal/fsutil"
	"conduit/internal/logger"
)

const historyStamp = "20060102T150405.000000000Z"

// Version is a persisted schema.
type Version struct {
	Timestamp time.Time `json:"timestamp"`
	Schema    Schema    `json:"schema"`
	Hash      string    `json:"hash"`
	Version   int       `json:"version"`
}

// EvolutionEvent is one audit record of applied schema changes.
type EvolutionEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Resource    string    `json:"resource"`
	OldVersion  int       `json:"old_version"`
	NewVersion  int       `json:"new_version"`
	Changes     Changes   `json:"changes"`
	DDLExecuted []string  `json:"ddl_executed"`
}

// Store keeps the latest schema per resource, an archive of superseded
// versions and an append-only evolution audit trail.
//
//	<dir>/schemas/<resource>_latest.json
//	<dir>/schemas/<resource>/<timestamp>_v<version>.json
//	<dir>/schema_evolution/<timestamp>_<resource>.json
type Store struct {
	dir string
	log logger.Logger
	now func() time.Time
}

// NewStore returns a Store rooted at dir. Nothing is created until the
// first write.
func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNull()
	}
	return &Store{dir: dir, log: log.WithName("conduit:schema"), now: time.Now}
}

func (s *Store) latestPath(resource string) string {
	return filepath.Join(s.dir, "schemas", resource+"_latest.json")
}

func (s *Store) historyDir(resource string) string {
	return filepath.Join(s.dir, "schemas", resource)
}

// Save archives the current latest schema, if any, and writes sch as the new
// latest with the next version number. Versions continue from the highest
// one on disk, archived ones included. An unreadable latest file is moved
// aside rather than overwritten.
func (s *Store) Save(resource string, sch Schema) (Version, error) {
	prev, corrupt, err := s.readLatest(resource)
	if err != nil {
		return Version{}, err
	}
	highest, err := s.highestArchived(resource)
	if err != nil {
		return Version{}, err
	}

	switch {
	case prev != nil:
		highest = max(highest, prev.Version)
		archive := filepath.Join(s.historyDir(resource),
			fmt.Sprintf("%s_v%06d.json", prev.Timestamp.UTC().Format(historyStamp), prev.Version))
		if err := os.MkdirAll(s.historyDir(resource), 0o755); err != nil {
			return Version{}, fmt.Errorf("schema store: %w", err)
		}
		if err := os.Rename(s.latestPath(resource), archive); err != nil {
			return Version{}, fmt.Errorf("schema store: archive %s: %w", resource, err)
		}
		s.log.Debug("archived schema", "resource", resource, "version", prev.Version, "path", archive)
	case corrupt:
		aside := s.latestPath(resource) + "." + s.now().UTC().Format(historyStamp) + ".corrupt"
		if err := os.Rename(s.latestPath(resource), aside); err != nil {
			return Version{}, fmt.Errorf("schema store: move aside %s: %w", resource, err)
		}
		s.log.Warn("moved unreadable latest schema aside", "resource", resource, "path", aside)
	}

	v := Version{
		Timestamp: s.now().UTC(),
		Schema:    sch,
		Hash:      sch.Hash(),
		Version:   highest + 1,
	}
	if err := fsutil.WriteJSON(s.latestPath(resource), v); err != nil {
		return Version{}, fmt.Errorf("schema store: %w", err)
	}
	s.log.Info("saved schema", "resource", resource, "version", v.Version, "hash", v.Hash)
	return v, nil
}

// LoadLast returns the latest schema for resource, or nil when none has been
// saved. An unreadable file is logged and treated as absent.
func (s *Store) LoadLast(resource string) (*Version, error) {
	v, _, err := s.readLatest(resource)
	return v, err
}

func (s *Store) readLatest(resource string) (*Version, bool, error) {
	var v Version
	err := fsutil.ReadJSON(s.latestPath(resource), &v)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		s.log.Warn("unreadable latest schema", "resource", resource, "error", err)
		return nil, true, nil
	}
	return &v, false, nil
}

// highestArchived returns the largest version number among the archive
// file names of resource, or 0.
func (s *Store) highestArchived(resource string) (int, error) {
	entries, err := os.ReadDir(s.historyDir(resource))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema store: list history: %w", err)
	}
	highest := 0
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		i := strings.LastIndex(name, "_v")
		if e.IsDir() || i < 0 || name == e.Name() {
			continue
		}
		if n, err := strconv.Atoi(name[i+2:]); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// History returns up to limit archived versions, newest first. limit <= 0
// returns all of them.
func (s *Store) History(resource string, limit int) ([]Version, error) {
	entries, err := os.ReadDir(s.historyDir(resource))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schema store: list history: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]Version, 0, len(names))
	for _, name := range names {
		var v Version
		if err := fsutil.ReadJSON(filepath.Join(s.historyDir(resource), name), &v); err != nil {
			s.log.Warn("skipping unreadable schema history file", "file", name, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// LogEvolution appends ev to the audit trail and returns the file written.
func (s *Store) LogEvolution(ev EvolutionEvent) (string, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	path := filepath.Join(s.dir, "schema_evolution",
		fmt.Sprintf("%s_%s.json", ev.Timestamp.Format(historyStamp), ev.Resource))
	if err := fsutil.WriteJSON(path, ev); err != nil {
		return "", fmt.Errorf("schema store: audit: %w", err)
	}
	return path, nil
}

// Export writes sch as a standalone JSON document to path.
func Export(path string, sch Schema) error {
	if err := fsutil.WriteJSON(path, sch); err != nil {
		return fmt.Errorf("export schema: %w", err)
	}
	return nil
}
