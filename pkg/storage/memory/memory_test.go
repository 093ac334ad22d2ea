package memory

import (
	"context"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New("docs")

	key, err := s.Store(ctx, strings.NewReader("hello"), "incoming/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "incoming/a.pdf", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCleanupBeforeRespectsPrefix(t *testing.T) {
	ctx := context.Background()
	s := New("docs")
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return old })

	_, _ = s.Store(ctx, strings.NewReader("x"), "results/old.json")
	_, _ = s.Store(ctx, strings.NewReader("x"), "incoming/old.pdf")
	s.SetClock(func() time.Time { return old.Add(48 * time.Hour) })
	_, _ = s.Store(ctx, strings.NewReader("x"), "results/new.json")

	require.NoError(t, s.CleanupBefore(ctx, "results/", old.Add(time.Hour)))
	assert.Equal(t, []string{"incoming/old.pdf", "results/new.json"}, s.Keys())
}
