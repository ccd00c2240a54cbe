package zarr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
)

const (
	MemoryStoreType    = "MemoryStore"
	LocalStoreType     = "LocalStore"
	dirPermissionBits  = 0755
	filePermissionBits = 0644
)

// Store is a key-value byte store. Keys are "/" separated paths.
// Implementations must be safe for concurrent use; any timeout or retry
// policy belongs to the implementation.
type Store interface {
	// Get returns the value under key, or an error wrapping ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys starting with prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	Type() string
}

type MemoryStore struct {
	lk   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) String() string { return fmt.Sprintf("memory://%p", s) }

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lk.RLock()
	defer s.lk.RUnlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), d...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, val []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = append([]byte(nil), val...)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.lk.RLock()
	defer s.lk.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lk.RLock()
	defer s.lk.RUnlock()
	keys := []string{}
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// LocalStore keeps each key in a file below a base directory
type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, err
	}

	return &LocalStore{
		base: base,
	}, nil
}

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) String() string { return "file://" + filepath.ToSlash(s.base) }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.base, filepath.FromSlash(key))
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := os.ReadFile(s.path(key))
	if missing(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return d, err
}

func (s *LocalStore) Set(ctx context.Context, key string, val []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return err
	}
	// write to a sibling and rename so readers never see a partial document
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(val); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), filePermissionBits); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fi, err := os.Stat(s.path(key))
	if missing(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if missing(err) {
		return nil
	}
	return err
}

// missing reports whether err means the key has no file. A key below a
// file, such as a metadata document under a chunk, fails with ENOTDIR.
func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := filepath.WalkDir(s.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

type Path []string

// NewPath normalizes a logical path. To ensure consistent behaviour
// across different storage systems, logical paths are normalized as
// follows:
//   - Replace all backward slash characters ("\") with forward slash characters ("/")
//   - Strip any leading "/" characters
//   - Strip any trailing "/" characters
//   - Collapse any sequence of more than one "/" character into a single "/" character
//
// The segments "." and ".." are rejected.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	p := Path{}
	for _, seg := range strings.Split(posix, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative segment %q", posix, seg)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Shift() (head string, ch Path) {
	switch len(p) {
	case 0:
		return "", nil
	case 1:
		return p[0], nil
	default:
		return p[0], p[1:]
	}
}

// Join returns a new path with elems appended. p is never modified.
func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	return append(append(out, p...), elems...)
}

// StorePath is a location within a Store
type StorePath struct {
	Store Store
	Path  Path
}

// Join returns the store path of a key below sp
func (sp StorePath) Join(elems ...string) StorePath {
	return StorePath{Store: sp.Store, Path: sp.Path.Join(elems...)}
}

func (sp StorePath) Key() string { return sp.Path.String() }

func (sp StorePath) Get(ctx context.Context) ([]byte, error) {
	return sp.Store.Get(ctx, sp.Key())
}

func (sp StorePath) Set(ctx context.Context, val []byte) error {
	return sp.Store.Set(ctx, sp.Key(), val)
}

func (sp StorePath) Delete(ctx context.Context) error {
	return sp.Store.Delete(ctx, sp.Key())
}

func (sp StorePath) String() string {
	if s, ok := sp.Store.(fmt.Stringer); ok {
		return s.String() + "/" + sp.Key()
	}
	return sp.Store.Type() + ":" + sp.Key()
}
