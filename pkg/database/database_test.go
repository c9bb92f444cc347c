package velesdb

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/velesdb/internal/distance"
)

func TestCreateAndGetCollection(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("docs", 4, distance.Cosine)
	require.NoError(t, err)
	require.Equal(t, 4, col.Dim())

	fetched, err := db.GetCollection("docs")
	require.NoError(t, err)
	require.Same(t, col, fetched)
}

func TestCreateCollectionRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("docs", 4, distance.Cosine)
	require.NoError(t, err)
	_, err = db.CreateCollection("docs", 4, distance.Cosine)
	require.Error(t, err)
}

func TestCreateCollectionRejectsBadDimension(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("docs", 0, distance.Cosine)
	require.Error(t, err)
}

func TestGetCollectionUnknownFails(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetCollection("missing")
	require.Error(t, err)
}

func TestListCollections(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("a", 3, distance.Cosine)
	require.NoError(t, err)
	_, err = db.CreateCollection("b", 3, distance.Cosine)
	require.NoError(t, err)

	names := db.ListCollections()
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestDropCollectionRemovesDirAndRegistry(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("docs", 3, distance.Cosine)
	require.NoError(t, err)
	require.NoError(t, db.DropCollection("docs"))

	require.NoFileExists(t, filepath.Join(dir, "docs", "metadata.json"))
	require.Empty(t, db.ListCollections())

	_, err = db.GetCollection("docs")
	require.Error(t, err)
}

func TestReopenDatabaseRestoresRegistry(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	_, err = db.CreateCollection("docs", 3, distance.Cosine)
	require.NoError(t, err)
	col, err := db.GetCollection("docs")
	require.NoError(t, err)

	extID := uuid.NewString()
	_, err = col.Upsert(extID, []float32{1, 2, 3}, map[string]any{"tag": "x"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, []string{"docs"}, reopened.ListCollections())

	col2, err := reopened.GetCollection("docs")
	require.NoError(t, err)
	vec, payload, ok := col2.Get(extID)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, vec)
	require.Equal(t, "x", payload["tag"])
}
