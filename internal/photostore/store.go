// Package photostore reads uploaded item photos from the upload folder.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound covers stale references, missing files and refs escaping the folder.
	ErrNotFound = errors.New("photo not found")
	ErrTooLarge = errors.New("photo too large")
)

// Store resolves photo references relative to one directory.
type Store struct {
	dir      string
	maxBytes int64
}

// New returns a store rooted at dir. maxBytes <= 0 disables the size check.
func New(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// Resolve returns the photo bytes. References may carry a leading "/" or a
// "media/" style prefix equal to the folder name; anything resolving outside
// the folder is reported as ErrNotFound.
func (s *Store) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := s.clean(ref)
	if !ok {
		return nil, ErrNotFound
	}

	f, err := os.OpenInRoot(s.dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open photo %s: %w", ref, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat photo %s: %w", ref, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if s.maxBytes > 0 && st.Size() > s.maxBytes {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, ref, st.Size())
	}

	r := io.Reader(f)
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read photo %s: %w", ref, err)
	}
	return data, nil
}

func (s *Store) clean(ref string) (string, bool) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	ref = strings.TrimLeft(ref, "/")
	if base := filepath.Base(s.dir); base != "" && base != "." {
		ref = strings.TrimPrefix(ref, base+"/")
	}
	if ref == "" {
		return "", false
	}
	name := filepath.Clean(filepath.FromSlash(ref))
	if !filepath.IsLocal(name) {
		return "", false
	}
	return name, true
}
