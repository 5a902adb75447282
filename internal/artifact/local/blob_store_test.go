// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/riftlens/internal/artifact/local"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "artifacts", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})
}

func TestPutGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		data := []byte(`[{"puuid":"p1"}]`)
		uri, err := store.PutObject(ctx, "manifest.json", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "manifest.json"), uri)

		got, err := store.GetObject(ctx, "manifest.json")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("NestedPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "reports/p1.json", "application/json", bytes.NewReader([]byte("{}")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "reports", "p1.json"))
		require.NoError(t, err)
		assert.Equal(t, "{}", string(readData))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.json", "application/json", bytes.NewReader([]byte("{}")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path traversal")

		_, err = store.GetObject(ctx, "../../etc/passwd")
		require.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.GetObject(ctx, "absent.json")
		require.ErrorIs(t, err, riftlens.ErrNotFound)
	})
}
