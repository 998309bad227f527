package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/source"
	"github.com/banshee-data/airquality.report/internal/testutil"
)

var _ source.Source = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sheetTable(t *testing.T) *reading.Table {
	t.Helper()
	table, err := reading.ParseCSV(strings.NewReader(testutil.SheetCSV))
	require.NoError(t, err)
	return table
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	table := sheetTable(t)
	fetched := time.Date(2025, 6, 1, 8, 20, 0, 0, time.UTC)

	id := uuid.New()
	require.NoError(t, db.SaveSnapshot(ctx, Snapshot{
		ID:        id,
		Source:    "sheet",
		FetchedAt: fetched,
		ModelKind: "catboost",
		Table:     table,
		Labels:    testutil.CatBoostLabels,
	}))

	got, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "sheet", got.Source)
	assert.True(t, fetched.Equal(got.FetchedAt))
	assert.Equal(t, "catboost", got.ModelKind)
	assert.Equal(t, testutil.CatBoostLabels, got.Labels)
	if diff := cmp.Diff(table, got.Table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchServesLatestSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Fetch(ctx)
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	older := &reading.Table{Columns: []string{"PM2.5", "PM10", "CO"}, Rows: []reading.Row{
		{Index: 0, Cells: []string{"1", "2", "3"}, Reading: reading.Reading{PM25: 1, PM10: 2, CO: 3}},
	}}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSnapshot(ctx, Snapshot{Source: "sheet", FetchedAt: base, Table: older}))
	require.NoError(t, db.SaveSnapshot(ctx, Snapshot{Source: "sheet", FetchedAt: base.Add(time.Minute), Table: sheetTable(t)}))

	table, err := db.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, "sqlite", db.Name())
	require.NotNil(t, table.Stored)
	assert.Equal(t, "sqlite", table.Stored.Name)
	assert.Equal(t, base.Add(time.Minute), table.Stored.FetchedAt)

	s, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.Labels)
}

func TestSnapshotsAndPrune(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveSnapshot(ctx, Snapshot{
			Source:    "file",
			FetchedAt: base.Add(time.Duration(i) * time.Minute),
			Table:     sheetTable(t),
		}))
	}

	infos, err := db.Snapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, infos, 5)
	assert.True(t, infos[0].FetchedAt.After(infos[4].FetchedAt))
	assert.Equal(t, 4, infos[0].Rows)

	n, err := db.Prune(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	infos, err = db.Snapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	var orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM readings WHERE snapshot_id NOT IN (SELECT snapshot_id FROM snapshots)`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestSaveSnapshotRejects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.Error(t, db.SaveSnapshot(ctx, Snapshot{Source: "sheet"}))
	assert.Error(t, db.SaveSnapshot(ctx, Snapshot{Source: "sheet", Table: sheetTable(t), Labels: []string{"Baik"}}))

	_, err := db.LatestSnapshot(ctx)
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}
