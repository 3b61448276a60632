// Package minions maintains the materialized fleet view: sparse upserts
// driven by ingested master events, pruning against the master's key list,
// and the filter engine behind minion search and presets.
package minions

import (
	"context"
	goerrors "errors"

	"github.com/tidwall/gjson"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// osGrain is the grains field osType is derived from.
const osGrain = "os"

// Conformity is a computed conformity facet: the raw state-return document
// plus the tallied counters.
type Conformity struct {
	Doc       string
	Success   int
	Incorrect int
	Error     int
}

// Fields is a sparse minion update. Nil members leave the stored facet
// untouched; present members replace it and stamp its lastUpdated time.
type Fields struct {
	Grains     *string
	Pillars    *string
	Pkgs       *string
	Conformity *Conformity
}

// Materializer applies event-driven updates to the minion store. The
// ingestion loop is the single writer, so read-merge-write is race-free;
// the save itself is an atomic full-row upsert.
type Materializer struct {
	store storage.MinionStore
}

// NewMaterializer builds a Materializer.
func NewMaterializer(store storage.MinionStore) *Materializer {
	return &Materializer{store: store}
}

// Upsert records that the minion was seen at the given time, applies any
// present fields, and returns the merged row. Unknown minions are created
// on first sight.
func (m *Materializer) Upsert(ctx context.Context, id string, at models.Time, fields Fields) (*models.Minion, error) {
	minion, err := m.store.GetMinion(ctx, id)
	if err != nil {
		if !goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewStorageError("loading minion", err)
		}
		minion = &models.Minion{ID: id}
	}

	merged := apply(*minion, at, fields)
	if err := m.store.SaveMinion(ctx, merged); err != nil {
		return nil, errors.NewStorageError("saving minion", err)
	}
	return &merged, nil
}

// Prune deletes minions the master no longer knows and reports how many
// rows were removed.
func (m *Materializer) Prune(ctx context.Context, knownIDs []string) (int64, error) {
	n, err := m.store.PruneMinions(ctx, knownIDs)
	if err != nil {
		return 0, errors.NewStorageError("pruning minions", err)
	}
	return n, nil
}

// apply merges a sparse update into a minion row.
func apply(minion models.Minion, at models.Time, fields Fields) models.Minion {
	minion.LastSeen = at

	if fields.Grains != nil {
		minion.Grains = fields.Grains
		minion.LastUpdatedGrains = &at
		// Grains without an os key keep the previously derived osType.
		if os := osTypeFromGrains(*fields.Grains); os != nil {
			minion.OSType = os
		}
	}
	if fields.Pillars != nil {
		minion.Pillars = fields.Pillars
		minion.LastUpdatedPillars = &at
	}
	if fields.Pkgs != nil {
		minion.Pkgs = fields.Pkgs
		minion.LastUpdatedPkgs = &at
	}
	if fields.Conformity != nil {
		minion.Conformity = &fields.Conformity.Doc
		minion.ConformitySuccess = &fields.Conformity.Success
		minion.ConformityIncorrect = &fields.Conformity.Incorrect
		minion.ConformityError = &fields.Conformity.Error
		minion.LastUpdatedConformity = &at
	}
	return minion
}

func osTypeFromGrains(grains string) *string {
	os := gjson.Get(grains, osGrain).String()
	if os == "" {
		return nil
	}
	return &os
}
