package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_registry.json")
	r, err := Open(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	return r, path
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	r, path := openTestRegistry(t)
	assert.Empty(t, r.List())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file only appears on first registration")
}

func TestRegisterAndGet(t *testing.T) {
	r, _ := openTestRegistry(t)

	err := r.Register("weather", Entry{
		Description: "Weather lookups",
		URL:         "http://localhost:9001",
		Metadata:    map[string]string{"transport": "http"},
	})
	require.NoError(t, err)

	entry, err := r.Get("weather")
	require.NoError(t, err)
	assert.Equal(t, "Weather lookups", entry.Description)
	assert.Equal(t, "http://localhost:9001", entry.URL)
	assert.False(t, entry.RegisteredAt.IsZero())
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r, _ := openTestRegistry(t)

	require.NoError(t, r.Register("dice", Entry{}))
	err := r.Register("dice", Entry{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r, _ := openTestRegistry(t)
	assert.Error(t, r.Register("", Entry{}))
}

func TestGetUnknown(t *testing.T) {
	r, _ := openTestRegistry(t)

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIsSorted(t *testing.T) {
	r, _ := openTestRegistry(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(name, Entry{}))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
}

func TestDeregister(t *testing.T) {
	r, _ := openTestRegistry(t)

	require.NoError(t, r.Register("files", Entry{}))
	require.NoError(t, r.Deregister("files"))

	_, err := r.Get("files")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.Deregister("files"), ErrNotFound)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_registry.json")
	logger := zaptest.NewLogger(t)

	r, err := Open(logger, path)
	require.NoError(t, err)
	require.NoError(t, r.Register("dice", Entry{Description: "Dice roller", URL: "stdio://dice"}))

	reopened, err := Open(logger, path)
	require.NoError(t, err)

	entry, err := reopened.Get("dice")
	require.NoError(t, err)
	assert.Equal(t, "Dice roller", entry.Description)
	assert.Equal(t, "stdio://dice", entry.URL)
}

func TestPersistedDocumentIsValidJSON(t *testing.T) {
	r, path := openTestRegistry(t)
	require.NoError(t, r.Register("weather", Entry{URL: "http://localhost:9001"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]Entry
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "weather")
}

func TestSnapshotIsACopy(t *testing.T) {
	r, _ := openTestRegistry(t)
	require.NoError(t, r.Register("a", Entry{}))

	snap := r.Snapshot()
	delete(snap, "a")

	_, err := r.Get("a")
	assert.NoError(t, err, "mutating the snapshot must not touch the catalog")
}

func TestConcurrentRegistrations(t *testing.T) {
	r, _ := openTestRegistry(t)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			done <- r.Register(string(rune('a'+i)), Entry{})
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
	assert.Len(t, r.List(), 10)
}
