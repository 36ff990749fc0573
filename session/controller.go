/*
Package session owns the process-wide "current store".

PURPOSE:
  Exactly one session database is active at a time. The Controller opens it,
  swaps it for a new or different one on request, and hands it to callers
  for the duration of one operation.

STATE MACHINE:
  Uninitialized --Boot/NewSession/Reload/LoadSpecific--> Active(store)
  Active(X)     --NewSession/Reload/LoadSpecific-------> Active(Y)
  Active(X)     --Close------------------------------> Uninitialized

  Switching is a hard cutover. The previous file stays on disk.

FILE NAMING:
  condo_repairs_<UTC 20060102T150405.000000000Z>_<8 hex>.db
  The timestamp sorts lexicographically in chronological order, so "most
  recent" is simply the last name in sorted order. The hex suffix (from a
  random uuid) keeps two sessions created in the same instant distinct.

CONCURRENCY:
  Operations run inside With/Read while holding the controller's read lock.
  A swap takes the write lock, so it waits for in-flight operations and no
  operation ever sees a closed handle. New stores are opened and initialized
  BEFORE the lock is taken, so a slow open never blocks readers.

  Transitions themselves are serialized by a second mutex held from name
  generation to swap. The active session is therefore always the one whose
  transition finished last, and a freshly created session always carries the
  newest name in the directory.

USAGE:
  ctrl, err := session.New("./databases", session.WithLogger(log))
  if err := ctrl.Boot(ctx); err != nil { ... }
  defer ctrl.Close()

  err = ctrl.With(ctx, func(s *sqlite.Store) error {
      _, err := s.ReplaceAll(ctx, units)
      return err
  })
*/
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/condo-repairs/repairs"
	"github.com/warp/condo-repairs/store/sqlite"
)

const (
	filePrefix = "condo_repairs_"
	fileExt    = ".db"

	// timestampLayout sorts lexicographically in time order.
	timestampLayout = "20060102T150405.000000000Z"
)

// Info describes one session file on disk.
type Info struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Active   bool      `json:"active"`
}

// Controller holds the active store.
type Controller struct {
	dir string
	log logrus.FieldLogger
	now func() time.Time

	// switchMu serializes transitions; mu guards store and active.
	switchMu  sync.Mutex
	lastStamp time.Time

	mu     sync.RWMutex
	store  *sqlite.Store
	active string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller for dir, creating the directory if needed. No
// store is active until Boot or NewSession.
func New(dir string, opts ...Option) (*Controller, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	c := &Controller{
		dir: dir,
		log: logrus.StandardLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the session directory.
func (c *Controller) Dir() string {
	return c.dir
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Boot opens the most recent session file, or creates a new session when
// there is none. A file that cannot be opened falls back to a new session.
func (c *Controller) Boot(ctx context.Context) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	latest, err := c.latest()
	if err != nil {
		return err
	}
	if latest == "" {
		c.log.Info("No existing databases found, creating new one")
		_, err := c.newSession(ctx)
		return err
	}

	if err := c.open(ctx, latest); err != nil {
		c.log.WithError(err).WithField("path", latest).Warn("Failed to load most recent database, creating new one")
		_, err := c.newSession(ctx)
		return err
	}
	c.log.WithField("path", latest).Info("Loaded most recent database")
	return nil
}

// NewSession creates a fresh, uniquely named store and makes it active.
func (c *Controller) NewSession(ctx context.Context) (string, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	return c.newSession(ctx)
}

// newSession requires switchMu.
func (c *Controller) newSession(ctx context.Context) (string, error) {
	path := filepath.Join(c.dir, c.newFileName())
	if err := c.open(ctx, path); err != nil {
		return "", err
	}
	c.log.WithField("path", path).Info("New database created")
	return path, nil
}

// NewSessionWith creates a fresh store, runs fill against it, and only then
// makes it active. When fill fails the new file is closed and removed and the
// previous session stays active.
func (c *Controller) NewSessionWith(ctx context.Context, fill func(*sqlite.Store) error) (string, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	path := filepath.Join(c.dir, c.newFileName())
	store, err := sqlite.NewContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("opening session %s: %w", path, err)
	}

	if err := fill(store); err != nil {
		store.Close()
		removeSessionFiles(path)
		return "", err
	}

	c.swap(store, path)
	c.log.WithField("path", path).Info("New database created")
	return path, nil
}

// Reload re-scans the directory and activates the most recent file. With no
// files on disk it creates a new session.
func (c *Controller) Reload(ctx context.Context) (string, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	latest, err := c.latest()
	if err != nil {
		return "", err
	}
	if latest == "" {
		return c.newSession(ctx)
	}
	if err := c.open(ctx, latest); err != nil {
		return "", err
	}
	c.log.WithField("path", latest).Info("Reloaded most recent database")
	return latest, nil
}

// LoadSpecific activates the store at path. The file must exist and live
// inside the session directory.
func (c *Controller) LoadSpecific(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return &repairs.ValidationError{Field: "dbPath", Message: "required"}
	}
	if !strings.EqualFold(filepath.Ext(path), fileExt) {
		return &repairs.ValidationError{Field: "dbPath", Message: "must be a " + fileExt + " file"}
	}
	if !c.contains(path) {
		return &repairs.ValidationError{Field: "dbPath", Message: "must be inside the session directory"}
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &repairs.NotFoundError{Kind: "database", Key: path}
	}
	if err := c.open(ctx, path); err != nil {
		return err
	}
	c.log.WithField("path", path).Info("Loaded database")
	return nil
}

// Close closes the active store. The controller returns to Uninitialized.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	c.active = ""
	return err
}

// open opens path outside the lock, then swaps it in and closes the old one.
func (c *Controller) open(ctx context.Context, path string) error {
	store, err := sqlite.NewContext(ctx, path)
	if err != nil {
		return fmt.Errorf("opening session %s: %w", path, err)
	}
	c.swap(store, path)
	return nil
}

// swap installs store as active and closes the previous one.
func (c *Controller) swap(store *sqlite.Store, path string) {
	c.mu.Lock()
	prev := c.store
	c.store = store
	c.active = path
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			c.log.WithError(err).WithField("path", prev.Path()).Warn("Failed to close previous database")
		}
	}
}

// =============================================================================
// ACCESS
// =============================================================================

// With runs fn against the active store. The store cannot be swapped or
// closed until fn returns. Returns repairs.ErrStoreUnavailable when no store
// is active.
func (c *Controller) With(ctx context.Context, fn func(*sqlite.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return repairs.ErrStoreUnavailable
	}
	return fn(c.store)
}

// Read is With for callers that only query. It holds the same read lock.
func (c *Controller) Read(ctx context.Context, fn func(*sqlite.Store) error) error {
	return c.With(ctx, fn)
}

// Current returns the active file path, or "" when uninitialized.
func (c *Controller) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Active reports whether a store is open.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store != nil
}

// List returns every session file, most recent first.
func (c *Controller) List() ([]Info, error) {
	names, err := c.scan()
	if err != nil {
		return nil, err
	}
	current := c.Current()

	out := make([]Info, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(c.dir, names[i])
		fi, err := os.Stat(path)
		if err != nil {
			continue // removed between scan and stat
		}
		out = append(out, Info{
			Name:     names[i],
			Path:     path,
			Size:     fi.Size(),
			Modified: fi.ModTime(),
			Active:   samePath(path, current),
		})
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// newFileName requires switchMu. Stamps strictly increase even when the
// clock does not.
func (c *Controller) newFileName() string {
	now := c.now().UTC()
	if !now.After(c.lastStamp) {
		now = c.lastStamp.Add(time.Nanosecond)
	}
	c.lastStamp = now
	stamp := now.Format(timestampLayout)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filePrefix + stamp + "_" + suffix + fileExt
}

// contains reports whether path resolves to a location under dir.
func (c *Controller) contains(path string) bool {
	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// scan returns the .db file names in dir in ascending lexicographic order.
func (c *Controller) scan() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (c *Controller) latest() (string, error) {
	names, err := c.scan()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return filepath.Join(c.dir, names[len(names)-1]), nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// removeSessionFiles deletes a session file and its WAL companions.
func removeSessionFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}
