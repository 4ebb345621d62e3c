package photostore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, max int64) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "items"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items", "sac.jpg"), []byte("jpegdata"), 0o644))
	return New(dir, max), dir
}

func TestResolve(t *testing.T) {
	s, _ := newStore(t, 0)

	tests := []struct {
		name string
		ref  string
	}{
		{"relative", "items/sac.jpg"},
		{"leading slash", "/items/sac.jpg"},
		{"folder prefix", "/media/items/sac.jpg"},
		{"backslashes", `items\sac.jpg`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Resolve(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, []byte("jpegdata"), data)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	s, _ := newStore(t, 0)

	for _, ref := range []string{"", "items/absent.jpg", "../secret", "items/../../secret", "items"} {
		t.Run(ref, func(t *testing.T) {
			_, err := s.Resolve(context.Background(), ref)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestResolveTooLarge(t *testing.T) {
	s, _ := newStore(t, 3)
	_, err := s.Resolve(context.Background(), "items/sac.jpg")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestResolveCanceled(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Resolve(ctx, "items/sac.jpg")
	assert.ErrorIs(t, err, context.Canceled)
}
