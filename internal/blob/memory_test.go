package blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutOverwritesAndPresigns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("clearance")

	_, err := store.PresignURL(ctx, "a.pdf", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	info, err := store.Put(ctx, "a.pdf", strings.NewReader("v1"), PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "mem://clearance/a.pdf", info.Locator)

	_, err = store.Put(ctx, "a.pdf", strings.NewReader("v2"), PutOptions{})
	require.NoError(t, err)

	rc, err := store.Get(ctx, "a.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "v2", string(data))

	url, err := store.PresignURL(ctx, "a.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "a.pdf")
}
