package registry

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// Logger defines the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// claims holds the absolute paths of documents owned by an open Store.
var claims sync.Map

// Options configures Open.
type Options struct {
	// ID names the submodel of a synthesised document (usually the device ID).
	ID string

	// Bootstrap is copied to the document path when no document exists.
	Bootstrap string

	// Services seed a new document when neither the document nor
	// Bootstrap exists.
	Services []ServiceDescriptor

	Logger Logger
}

// Store is the in-memory index of one device's registry document.
//
// Every mutation updates the index and commits the whole document to disk
// before returning. A process holds at most one Store per path, and all
// read-modify-write cycles run under the Store mutex.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger Logger

	doc      *environment
	services []ServiceDescriptor
	byName   map[string]int
	flags    StateFlags

	// loadErr is set while the file on disk cannot be parsed.
	loadErr error

	// lastSum is the checksum of the last bytes read or written, used to
	// ignore reload notifications caused by our own commits.
	lastSum [sha256.Size]byte

	closed bool
}

// Open loads the registry document at path, creating it from opts.Bootstrap
// or opts.Services when it does not exist.
//
// A document that exists but cannot be parsed does not fail Open: the Store
// is returned and Query reports ErrParse until a valid document is loaded
// via Reload or Import.
func Open(path string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving registry path: %w", err)
	}
	if _, loaded := claims.LoadOrStore(abs, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s", ErrDocumentInUse, abs)
	}

	s := &Store{
		path:   abs,
		logger: opts.Logger,
		byName: map[string]int{},
		flags:  StateFlags{},
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}

	if err := s.load(opts); err != nil {
		claims.Delete(abs)
		return nil, err
	}
	return s, nil
}

func (s *Store) load(opts Options) error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data, err = s.bootstrap(opts)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("reading registry document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceLocked(data); err != nil {
		s.loadErr = err
		s.logger.Warn("registry document is malformed", "path", s.path, "error", err)
		return nil
	}

	if _, ok := s.flags.Active(); !ok {
		s.logger.Warn("registry state flags inconsistent, resetting to Idle", "path", s.path, "flags", s.flags)
		s.flags = StateFlags{StateIdle: true}
		return s.commitLocked()
	}
	return nil
}

// bootstrap writes the initial document and returns its bytes.
func (s *Store) bootstrap(opts Options) ([]byte, error) {
	var data []byte
	if opts.Bootstrap != "" {
		b, err := os.ReadFile(opts.Bootstrap)
		switch {
		case err == nil:
			data = b
			s.logger.Info("registry document created from bootstrap", "path", s.path, "bootstrap", opts.Bootstrap)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("reading bootstrap document: %w", err)
		}
	}
	if data == nil {
		b, err := newDocument(opts.ID, opts.Services).encode()
		if err != nil {
			return nil, err
		}
		data = b
		s.logger.Info("registry document synthesised", "path", s.path, "services", len(opts.Services))
	}
	if err := writeAtomic(s.path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// replaceLocked parses data and swaps it in as the current index.
// On failure the previous index is kept. Caller holds mu.
func (s *Store) replaceLocked(data []byte) error {
	doc, services, flags, err := decodeDocument(data)
	if err != nil {
		return err
	}
	byName := make(map[string]int, len(services))
	for i, d := range services {
		byName[d.Name] = i
	}
	s.doc = doc
	s.services = services
	s.byName = byName
	s.flags = flags
	s.loadErr = nil
	s.lastSum = sha256.Sum256(data)
	return nil
}

// usableLocked returns the error that blocks access to the index, if any.
func (s *Store) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	return s.loadErr
}

// Path returns the absolute path of the persisted document.
func (s *Store) Path() string {
	return s.path
}

// Query returns the descriptor named name. The match is exact and
// case-sensitive.
func (s *Store) Query(name string) (ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return ServiceDescriptor{}, err
	}
	i, ok := s.byName[name]
	if !ok {
		return ServiceDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.services[i], nil
}

// List returns all descriptors in document order.
func (s *Store) List() ([]ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	out := make([]ServiceDescriptor, len(s.services))
	copy(out, s.services)
	return out, nil
}

// Configure overwrites the fields of an existing descriptor. It never
// creates one. Fields are stored trimmed.
func (s *Store) Configure(d ServiceDescriptor) error {
	d = d.trimmed()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	i, ok := s.byName[d.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, d.Name)
	}
	prev := s.services[i]
	s.services[i] = d
	if err := s.commitLocked(); err != nil {
		s.services[i] = prev
		return err
	}
	s.logger.Info("service configured", "service", d.Name)
	return nil
}

// Add appends a new descriptor. Names must be unique once surrounding
// whitespace is removed. Fields are stored trimmed.
func (s *Store) Add(d ServiceDescriptor) error {
	d = d.trimmed()
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidService)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if _, ok := s.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrServiceExists, d.Name)
	}
	s.services = append(s.services, d)
	s.byName[d.Name] = len(s.services) - 1
	if err := s.commitLocked(); err != nil {
		s.services = s.services[:len(s.services)-1]
		delete(s.byName, d.Name)
		return err
	}
	s.logger.Info("service added", "service", d.Name)
	return nil
}

// Remove deletes the descriptor named name.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	i, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	prev := s.services
	next := make([]ServiceDescriptor, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	s.services = next
	s.reindexLocked()

	if err := s.commitLocked(); err != nil {
		s.services = prev
		s.reindexLocked()
		return err
	}
	s.logger.Info("service removed", "service", name)
	return nil
}

func (s *Store) reindexLocked() {
	s.byName = make(map[string]int, len(s.services))
	for i, d := range s.services {
		s.byName[d.Name] = i
	}
}

// SetState makes name the only active operational state. The flag change is
// a single committed write. An invalid name leaves the document untouched.
func (s *Store) SetState(name State) error {
	if !name.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	prev := s.flags
	next := make(StateFlags, len(ValidStates))
	for _, v := range ValidStates {
		next[v] = v == name
	}
	s.flags = next
	if err := s.commitLocked(); err != nil {
		s.flags = prev
		return err
	}
	s.logger.Debug("operational state set", "state", name)
	return nil
}

// State returns the currently active operational state.
func (s *Store) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return "", err
	}
	st, ok := s.flags.Active()
	if !ok {
		return "", fmt.Errorf("%w: %d active flags", ErrParse, s.countActiveLocked())
	}
	return st, nil
}

func (s *Store) countActiveLocked() int {
	n := 0
	for _, v := range ValidStates {
		if s.flags[v] {
			n++
		}
	}
	return n
}

// States returns a copy of the three state flags.
func (s *Store) States() (StateFlags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	out := make(StateFlags, len(ValidStates))
	for _, v := range ValidStates {
		out[v] = s.flags[v]
	}
	return out, nil
}

// Commit writes the current index to disk.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	return s.commitLocked()
}

// commitLocked renders the index into the document and replaces the file.
func (s *Store) commitLocked() error {
	s.doc.setServices(s.services)
	s.doc.setStates(s.flags)
	data, err := s.doc.encode()
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.lastSum = sha256.Sum256(data)
	return nil
}

// Export returns the committed document bytes.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	return s.doc.encode()
}

// Import replaces the document with data after validating it. Invalid data
// leaves the Store unchanged and returns an error wrapping ErrParse.
func (s *Store) Import(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, _, flags, err := decodeDocument(data); err != nil {
		return err
	} else if _, ok := flags.Active(); !ok {
		return fmt.Errorf("%w: imported document must have exactly one active state", ErrParse)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	if err := s.replaceLocked(data); err != nil {
		return err
	}
	s.logger.Info("registry document imported", "path", s.path, "services", len(s.services))
	return nil
}

// Reload re-reads the document from disk. It reports whether the index
// changed. A malformed file sets the parse error returned by Query until a
// valid document is read.
func (s *Store) Reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("reading registry document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	sum := sha256.Sum256(data)
	if sum == s.lastSum && s.loadErr == nil {
		return false, nil
	}
	if err := s.replaceLocked(data); err != nil {
		s.loadErr = err
		s.lastSum = sum
		s.logger.Warn("registry document is malformed", "path", s.path, "error", err)
		return true, err
	}
	s.logger.Info("registry document reloaded", "path", s.path, "services", len(s.services))
	return true, nil
}

// Close releases the document path so another Store may open it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	claims.Delete(s.path)
	return nil
}

// writeAtomic replaces path with data via a temporary file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("writing temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("syncing temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp document: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("setting document permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing registry document: %w", err)
	}
	return nil
}
