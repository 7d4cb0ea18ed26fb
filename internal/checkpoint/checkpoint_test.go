package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
)

func sampleSnapshot(runID string, seq int) *Snapshot {
	rc := state.New(runID, []string{"llm"}, false, []string{"collector", "tech_scoring"})
	rc.StageStatus["collector"] = state.StatusCompleted
	rc.Keywords = []string{"LLM agent"}
	rc.RawEntities.Papers = []types.Paper{{ID: "2401.00001", Title: "Agents", Keywords: []string{"LLM agent"}}}
	rc.ErrorLog = []types.ErrorEntry{{Stage: "collector", Kind: types.ErrorKindTransient, Message: "timeout"}}
	return &Snapshot{
		Version: FormatVersion,
		RunID:   runID,
		Seq:     seq,
		Status:  RunRunning,
		Routes:  map[string][]string{"collector": {"market_scoring", "tech_scoring"}},
		Context: rc,
		SavedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	missing, err := store.Load(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snap := sampleSnapshot("run-a", 1)
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.Seq)
	assert.Equal(t, RunRunning, loaded.Status)
	assert.Equal(t, state.StatusCompleted, loaded.Context.Status("collector"))
	assert.Equal(t, []string{"LLM agent"}, loaded.Context.Keywords)
	assert.Equal(t, "2401.00001", loaded.Context.RawEntities.Papers[0].ID)
	assert.Equal(t, []string{"market_scoring", "tech_scoring"}, loaded.Routes["collector"])

	next := sampleSnapshot("run-a", 2)
	next.Status = RunCompleted
	require.NoError(t, store.Save(ctx, next))

	loaded, err = store.Load(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Seq)
	assert.Equal(t, RunCompleted, loaded.Status)
}

func TestFileStore_Contract(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	storeContract(t, store)
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cp", "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()
	storeContract(t, store)
}

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	storeContract(t, store)
	assert.Equal(t, 2, store.Saves())
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, store.Save(context.Background(), sampleSnapshot("run-b", seq)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-b.json", entries[0].Name())
}

func TestFileStore_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-c.json"), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background(), "run-c")
	assert.Error(t, err)
}

func TestSQLiteStore_StaleSequenceIgnored(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot("run-d", 5)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("run-d", 3)))

	loaded, err := store.Load(ctx, "run-d")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Seq)
}

func TestDecode_RunIDMismatch(t *testing.T) {
	data, err := Encode(sampleSnapshot("run-e", 1))
	require.NoError(t, err)

	_, err = Decode("run-f", data)
	assert.Error(t, err)
}

func TestValidateRunID(t *testing.T) {
	assert.NoError(t, ValidateRunID("7d9f0c1e-run"))
	assert.Error(t, ValidateRunID(""))
	assert.Error(t, ValidateRunID("../etc/passwd"))
	assert.Error(t, ValidateRunID(`a\b`))
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunAborted.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.False(t, RunInterrupted.Terminal())
}
