package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/archive/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)
	key := ResultsKey("march-2025")

	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"ok":true}`), PutOptions{}))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "application/json", info.ContentType)

	url, err := s.URL(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/archive/results/march-2025.json", url)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorage_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)
	key := ResultsKey("april-2025")

	require.NoError(t, s.Put(ctx, key, strings.NewReader("v1"), PutOptions{}))

	err := s.Put(ctx, key, strings.NewReader("v2"), PutOptions{})
	assert.True(t, IsKeyExists(err))

	require.NoError(t, s.Put(ctx, key, strings.NewReader("v2"), PutOptions{Overwrite: true}))
	rc, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "v2", string(body))
}

func TestLocalStorage_MaxSize(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	err := s.Put(ctx, "big.txt", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	assert.ErrorIs(t, err, ErrTooLarge)

	ok, err := s.Exists(ctx, "big.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	for _, key := range []string{"", "../escape.json", "results/../../x", "/etc/passwd"} {
		err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "results/may-2025.json", ResultsKey("may-2025"))

	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "assessments/123e4567-e89b-12d3-a456-426614174000/1700000000.json", AssessmentKey(id, at))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/plain", DetectContentType("text/plain", "x.json"))
	assert.Equal(t, "application/json", DetectContentType("", "results/a.json"))
	assert.Equal(t, "application/octet-stream", DetectContentType("", "blob"))
}
