package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anggasct/strata/pkg/persistence/filestore"
	"github.com/anggasct/strata/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	persistencetest.RunContract(t, filestore.New(t.TempDir()))
}

func TestFileStore_WritesYAML(t *testing.T) {
	dir := t.TempDir()
	store := filestore.New(dir)
	m := persistencetest.Machine(t, "yaml-machine")

	require.NoError(t, store.Save(context.Background(), m.Snapshot()))

	data, err := os.ReadFile(filepath.Join(dir, "yaml-machine.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "machine_id: yaml-machine")
	assert.Contains(t, string(data), "leaf: a")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestFileStore_ListIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store := filestore.New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-m-123.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = filestore.New(filepath.Join(dir, "missing")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("version: [oops"), 0o644))

	_, err := filestore.New(dir).Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "failed to unmarshal snapshot")
}

func TestFileStore_DefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join(".strata", "snapshots"), filestore.New("").BasePath)
}
