// Package files persists component artifacts in one directory per session.
//
// Layout: <root>/<session>/<component>.html, .css, .js and .meta.json. An
// artifact is always written as a unit; each file is replaced atomically and
// a per-session lock keeps readers from observing a half-written component.
package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/sitecraft/internal/site"
)

// ErrInvalidID is returned for session or component ids that are not safe
// to use as path elements.
var ErrInvalidID = errors.New("invalid identifier")

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

const metaSuffix = ".meta.json"

type meta struct {
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// legacyOwners are the components a bare html/css/js set is attributed to,
// in order of preference.
var legacyOwners = []string{site.Footer, site.ContactForm}

// Store is a filesystem-backed artifact store.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from the map once nobody holds or waits for it.
type sessionLock struct {
	sync.RWMutex
	refs int
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sessionLock)}
}

// Root returns the base directory of the store.
func (s *Store) Root() string {
	return s.root
}

// ValidSessionID reports whether id can name a session directory.
func ValidSessionID(id string) bool {
	return sessionPattern.MatchString(id)
}

func (s *Store) acquire(sessionID string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	return l
}

func (s *Store) release(sessionID string, l *sessionLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
}

func (s *Store) dir(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("session %q: %w", sessionID, ErrInvalidID)
	}
	return filepath.Join(s.root, sessionID), nil
}

// Create makes the session directory. It is a no-op when it already exists.
func (s *Store) Create(sessionID string) error {
	dir, err := s.dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	return nil
}

// Exists reports whether the session directory is present.
func (s *Store) Exists(sessionID string) bool {
	dir, err := s.dir(sessionID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Write stores the artifact of component id, creating the session directory
// when needed. Writing the same artifact twice leaves the same state as
// writing it once; the last write wins.
func (s *Store) Write(sessionID, id string, a site.Artifact) error {
	return s.write(sessionID, id, a, "")
}

// WriteWithSource is Write that also records where the artifact came from
// (model, fallback, chat) in the component metadata.
func (s *Store) WriteWithSource(sessionID, id string, a site.Artifact, source string) error {
	return s.write(sessionID, id, a, source)
}

func (s *Store) write(sessionID, id string, a site.Artifact, source string) error {
	if !site.ValidID(id) {
		return fmt.Errorf("component %q: %w", id, ErrInvalidID)
	}
	dir, err := s.dir(sessionID)
	if err != nil {
		return err
	}

	lock := s.acquire(sessionID)
	defer s.release(sessionID, lock)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	m, err := json.Marshal(meta{Description: a.Description, Source: source})
	if err != nil {
		return err
	}
	// Markup goes last: a component counts as present once its markup exists.
	parts := []struct {
		name string
		data []byte
	}{
		{id + "." + site.ExtStyle, []byte(a.Style)},
		{id + "." + site.ExtBehavior, []byte(a.Behavior)},
		{id + metaSuffix, m},
		{id + "." + site.ExtMarkup, []byte(a.Markup)},
	}
	for _, p := range parts {
		if err := writeAtomic(dir, p.name, p.data); err != nil {
			return fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadAll returns every component written to the session so far. A missing
// session directory yields an empty result, not an error. A component is
// present once its markup file exists. Bare html/css/js files from older
// sessions are attributed to the first of footer and contact-form that is
// not otherwise present.
func (s *Store) ReadAll(sessionID string) (site.Site, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return nil, err
	}

	lock := s.acquire(sessionID)
	defer s.release(sessionID, lock)
	lock.RLock()
	defer lock.RUnlock()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return site.Site{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	result := site.Site{}
	legacy := false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if name == site.ExtMarkup {
			legacy = true
			continue
		}
		id, ok := strings.CutSuffix(name, "."+site.ExtMarkup)
		if !ok || !site.ValidID(id) {
			continue
		}
		a, err := readComponent(dir, id)
		if err != nil {
			slog.Warn("skipping unreadable component", "session_id", sessionID, "component", id, "error", err)
			continue
		}
		result[id] = a
	}
	if legacy {
		readLegacy(dir, sessionID, result)
	}
	return result, nil
}

// readLegacy adds the bare html/css/js set to result under the first free
// legacy owner. It is never written by this package.
func readLegacy(dir, sessionID string, result site.Site) {
	owner := ""
	for _, id := range legacyOwners {
		if _, taken := result[id]; !taken {
			owner = id
			break
		}
	}
	if owner == "" {
		slog.Warn("ignoring unqualified component files, every candidate owner is present",
			"session_id", sessionID, "candidates", legacyOwners)
		return
	}
	markup, err := os.ReadFile(filepath.Join(dir, site.ExtMarkup))
	if err != nil {
		slog.Warn("skipping unreadable unqualified markup", "session_id", sessionID, "error", err)
		return
	}
	slog.Warn("attributing unqualified component files", "session_id", sessionID, "component", owner)
	result[owner] = site.Artifact{
		Markup:   string(markup),
		Style:    readOptional(filepath.Join(dir, site.ExtStyle)),
		Behavior: readOptional(filepath.Join(dir, site.ExtBehavior)),
	}
}

// Read returns a single component artifact.
func (s *Store) Read(sessionID, id string) (site.Artifact, bool, error) {
	all, err := s.ReadAll(sessionID)
	if err != nil {
		return site.Artifact{}, false, err
	}
	a, ok := all[id]
	return a, ok, nil
}

// Count returns the number of components present in the session.
func (s *Store) Count(sessionID string) (int, error) {
	all, err := s.ReadAll(sessionID)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Sessions lists the session ids that have a directory in the store.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && ValidSessionID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func readComponent(dir, id string) (site.Artifact, error) {
	markup, err := os.ReadFile(filepath.Join(dir, id+"."+site.ExtMarkup))
	if err != nil {
		return site.Artifact{}, err
	}
	a := site.Artifact{
		Markup:   string(markup),
		Style:    readOptional(filepath.Join(dir, id+"."+site.ExtStyle)),
		Behavior: readOptional(filepath.Join(dir, id+"."+site.ExtBehavior)),
	}
	if raw := readOptional(filepath.Join(dir, id+metaSuffix)); raw != "" {
		var m meta
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			a.Description = m.Description
		}
	}
	return a, nil
}

func readOptional(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}
