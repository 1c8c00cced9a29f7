// Package storage lays out the per shard pack stores under the data
// directory and opens them with the configured final tier.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/config"
	"github.com/setavenger/sozudb/internal/database/dbpebble"
	"github.com/setavenger/sozudb/internal/dblevel"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/packstore"
)

const (
	FinalTierPebble  = "pebble"
	FinalTierLevelDB = "leveldb"
	FinalTierMemory  = "memory"
	FinalTierNone    = "none"
)

type Layout struct {
	LayersPath         string
	FinalTierPath      string
	SectorCount        uint32
	SectorSizes        []int
	FinalTier          string
	AtomicSectorWrites bool
}

// LayoutFromConfig reads the layout from the loaded configuration.
func LayoutFromConfig() Layout {
	return Layout{
		LayersPath:         config.LayersPath,
		FinalTierPath:      config.FinalTierPath,
		SectorCount:        config.SectorCount,
		SectorSizes:        config.LayerSectorSizes,
		FinalTier:          config.FinalTier,
		AtomicSectorWrites: config.AtomicSectorWrites,
	}
}

func (l Layout) ShardDir(shard int) string {
	return filepath.Join(l.LayersPath, fmt.Sprintf("shard-%d", shard))
}

func (l Layout) FinalTierDir(shard int) string {
	return filepath.Join(l.FinalTierPath, fmt.Sprintf("shard-%d", shard))
}

// OpenFinalTier returns nil for FinalTierNone.
func (l Layout) OpenFinalTier(shard int) (packstore.KeyValueStore, error) {
	switch l.FinalTier {
	case FinalTierPebble:
		return dbpebble.Open(l.FinalTierDir(shard))
	case FinalTierLevelDB:
		return dblevel.Open(l.FinalTierDir(shard))
	case FinalTierMemory:
		return packstore.NewMemoryKeyValueStore(), nil
	case FinalTierNone, "":
		return nil, nil
	default:
		return nil, errors.Errorf("unknown final tier %q", l.FinalTier)
	}
}

// OpenShard opens the layers and final tier of shard without touching them.
func (l Layout) OpenShard(shard int) (*packstore.LayeredPackStore, error) {
	final, err := l.OpenFinalTier(shard)
	if err != nil {
		return nil, errors.Wrapf(err, "shard %d final tier", shard)
	}
	store, err := packstore.Open(packstore.Config{
		Dir:                l.ShardDir(shard),
		SectorCount:        l.SectorCount,
		SectorSizes:        l.SectorSizes,
		AtomicSectorWrites: l.AtomicSectorWrites,
	}, final)
	if err != nil {
		if final != nil {
			_ = final.Close()
		}
		return nil, errors.Wrapf(err, "shard %d", shard)
	}
	return store, nil
}

// PrepareShard opens shard, finishes a write cut short by a crash and
// initializes sectors that were never written.
func (l Layout) PrepareShard(shard int) (*packstore.LayeredPackStore, error) {
	store, err := l.OpenShard(shard)
	if err != nil {
		return nil, err
	}
	if err = store.Recover(); err != nil {
		_ = store.Close()
		return nil, errors.Wrapf(err, "shard %d recover", shard)
	}
	if err = store.Initialize(); err != nil {
		_ = store.Close()
		return nil, errors.Wrapf(err, "shard %d initialize", shard)
	}
	logging.L.Info().Int("shard", shard).Int("layers", store.LayerCount()).Msg("shard ready")
	return store, nil
}
