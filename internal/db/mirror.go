package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/source"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

// LabelFunc predicts one label per table row, in row order.
type LabelFunc func(*reading.Table) ([]string, error)

// Mirror is a source.Source that records every successful upstream fetch.
// With Fallback set it serves the newest recorded table when the upstream
// fails; that table carries its stored fetch time and is reported as
// FallbackName.
type Mirror struct {
	upstream source.Source
	db       *DB

	// Keep bounds the number of stored snapshots; zero keeps all of them.
	Keep int
	// Label, when set, stores a prediction alongside each row.
	Label     LabelFunc
	ModelKind string
	Clock     timeutil.Clock
	// Fallback serves stored data while the upstream is failing.
	Fallback bool
}

// FallbackName is the source name reported for tables served by the fallback.
const FallbackName = "sqlite (fallback)"

// NewMirror wraps upstream.
func NewMirror(upstream source.Source, db *DB) *Mirror {
	return &Mirror{upstream: upstream, db: db, Clock: timeutil.RealClock{}}
}

// Name reports the upstream name so metrics and the footer keep naming the
// real origin of the data.
func (m *Mirror) Name() string { return m.upstream.Name() }

func (m *Mirror) Fetch(ctx context.Context) (*reading.Table, error) {
	table, err := m.upstream.Fetch(ctx)
	if err != nil {
		if !m.Fallback {
			return nil, err
		}
		snap, ferr := m.db.LatestSnapshot(ctx)
		if ferr != nil {
			if errors.Is(ferr, ErrNoSnapshot) {
				return nil, err
			}
			return nil, fmt.Errorf("%w (mirror: %v)", err, ferr)
		}
		monitoring.Logf("mirror: %s failed, serving snapshot %s from %s: %v",
			m.upstream.Name(), snap.ID, snap.FetchedAt.Format(time.RFC3339), err)
		return snap.replay(FallbackName), nil
	}

	if err := m.record(ctx, table); err != nil {
		monitoring.Logf("mirror: failed to store snapshot: %v", err)
	}
	return table, nil
}

// record stores the table. Failures here never fail the fetch.
func (m *Mirror) record(ctx context.Context, table *reading.Table) error {
	snap := Snapshot{
		Source:    m.upstream.Name(),
		FetchedAt: m.Clock.Now(),
		ModelKind: m.ModelKind,
		Table:     table,
	}
	if m.Label != nil {
		labels, err := m.Label(table)
		if err != nil {
			return fmt.Errorf("label rows: %w", err)
		}
		snap.Labels = labels
	}
	if err := m.db.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	if m.Keep > 0 {
		if _, err := m.db.Prune(ctx, m.Keep); err != nil {
			return err
		}
	}
	return nil
}
