package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/config"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	j := NewInMemory()
	j.now = fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	defer j.Close()

	first, err := j.RecordPinned(ctx, "QmFirst", "a.jpg", 10, "CASE-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPinned, first.Status)

	second, err := j.RecordPinned(ctx, "QmSecond", "b.jpg", 20, "CASE-2")
	require.NoError(t, err)

	anchored, err := j.MarkAnchored(ctx, first.ID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, StatusAnchored, anchored.Status)
	assert.Equal(t, "0xabc", anchored.TxHash)
	assert.True(t, anchored.UpdatedAt.After(anchored.PinnedAt))

	orphaned, err := j.MarkOrphaned(ctx, second.ID, errors.New("execution reverted: Only police can add evidence"))
	require.NoError(t, err)
	assert.Equal(t, StatusOrphaned, orphaned.Status)
	assert.Contains(t, orphaned.Error, "Only police")

	all, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "QmFirst", all[0].CID)
	assert.Equal(t, "QmSecond", all[1].CID)

	orphans, err := j.Orphaned(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, second.ID, orphans[0].ID)

	// anchoring an orphan later clears the error
	reanchored, err := j.MarkAnchored(ctx, second.ID, "0xdef")
	require.NoError(t, err)
	assert.Empty(t, reanchored.Error)

	orphans, err = j.Orphaned(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestFindByCID(t *testing.T) {
	ctx := context.Background()
	j := NewInMemory()
	j.now = fixedClock(time.Now())

	_, err := j.RecordPinned(ctx, "QmSame", "a", 1, "C1")
	require.NoError(t, err)
	latest, err := j.RecordPinned(ctx, "QmSame", "a", 1, "C2")
	require.NoError(t, err)

	got, ok, err := j.FindByCID(ctx, "QmSame")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, latest.ID, got.ID)

	_, ok, err = j.FindByCID(ctx, "QmMissing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownEntry(t *testing.T) {
	j := NewInMemory()
	_, err := j.MarkAnchored(context.Background(), uuid.New(), "0x1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenPersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig
	cfg.RootDir = t.TempDir()
	cfg.Journal.Path = "journal"

	j, err := Open(cfg)
	require.NoError(t, err)
	e, err := j.RecordPinned(ctx, "QmDisk", "disk.bin", 3, "CASE-9")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.DirExists(t, filepath.Join(cfg.RootDir, "journal"))

	j, err = Open(cfg)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "QmDisk", got.CID)
	assert.Equal(t, StatusPinned, got.Status)
}

func TestOpenDisabledIsInMemory(t *testing.T) {
	cfg := config.DefaultConfig
	cfg.RootDir = t.TempDir()
	cfg.Journal.Enabled = false

	j, err := Open(cfg)
	require.NoError(t, err)
	defer j.Close()
	assert.NoDirExists(t, filepath.Join(cfg.RootDir, "journal"))
}
