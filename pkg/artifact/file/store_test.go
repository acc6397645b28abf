package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorforge/tailorbatch/pkg/artifact"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseDir: "   "})
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	key := "batches/b1/items/0000/resume.md"
	ref, err := s.Put(ctx, key, []byte("# Tailored Resume\n"), "text/markdown; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, key, ref)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "# Tailored Resume\n", string(got))
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, "k", []byte("first"), "text/plain")
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", []byte("second"), "text/plain")
	require.NoError(t, err)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing/key.md")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	var serr *artifact.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Get", serr.Op)
	assert.Equal(t, "file", serr.Backend)
}

func TestKeyTraversalRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"../outside.md", "a/../../outside.md", ""} {
		_, err := s.Put(ctx, key, []byte("x"), "text/plain")
		assert.Error(t, err, "key %q must be rejected", key)

		_, err = s.Get(ctx, key)
		assert.Error(t, err, "key %q must be rejected", key)
	}
}

func TestPutHonorsContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "k", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	_, err = s.Put(ctx, "nested/resume.md", []byte("x"), "text/markdown")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "resume.md", entries[0].Name())
}

func TestConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := filepath.Join("batches/b1/items", string(rune('a'+i)), "resume.md")
			_, err := s.Put(ctx, key, []byte("doc"), "text/markdown")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
