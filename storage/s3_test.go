package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	a := ObjectKey("archives", "statements", at, "statement.xlsx")
	b := ObjectKey("archives", "statements", at, "statement.xlsx")

	assert.True(t, strings.HasPrefix(a, "archives/statements/2025/03/"))
	assert.True(t, strings.HasSuffix(a, "-statement.xlsx"))
	assert.NotEqual(t, a, b)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	body := []byte("zip bytes")
	require.NoError(t, m.Put(ctx, "k", "application/zip", body))
	body[0] = 'Z'

	rc, err := m.Get(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(got))
	assert.Equal(t, []string{"k"}, m.Keys())

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), "us-east-1", "")
	assert.Error(t, err)
}
