package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"

	"github.com/setavenger/sozudb/internal/benchmark"
	"github.com/setavenger/sozudb/internal/chain"
	"github.com/setavenger/sozudb/internal/hashing"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/shard"
	"github.com/setavenger/sozudb/internal/sozu"
	"github.com/setavenger/sozudb/internal/storage"
)

func main() {
	var (
		dataDir       = flag.String("datadir", "", "Directory for the layers (default: a temporary directory)")
		blocks        = flag.Int("blocks", 1000, "Number of blocks to generate")
		coinsPerBlock = flag.Int("coins", 2000, "Coins produced per block")
		spendPerBlock = flag.Int("spend", 1500, "Live coins consumed per block")
		scriptSize    = flag.Int("script", 25, "Script size of every coin")
		shards        = flag.Int("shards", 4, "Number of shards")
		sectorCount   = flag.Uint("sectors", 4095, "Sectors per layer")
		finalTier     = flag.String("final", storage.FinalTierPebble, "Final tier: pebble, leveldb, memory or none")
		pruneDepth    = flag.Uint("prune", 100, "Prune depth in blocks")
		concurrency   = flag.Int("concurrency", 256, "Requests in flight per block")
		seed          = flag.Int64("seed", 1, "Seed of the workload")
	)
	flag.Parse()

	// Setup logging
	logging.SetLogLevel(zerolog.InfoLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dir := *dataDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "sozu-bench-")
		if err != nil {
			logging.L.Fatal().Err(err).Msg("could not create data directory")
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	layout := storage.Layout{
		LayersPath:    dir + "/layers",
		FinalTierPath: dir + "/final",
		SectorCount:   uint32(*sectorCount),
		SectorSizes:   []int{8192, 32_768},
		FinalTier:     *finalTier,
	}

	hasher := hashing.NewSipHasher([hashing.SecretSize]byte{0x50, 0x7a})
	var (
		stores []*packstore.LayeredPackStore
		tables []shard.Table
	)
	for i := 0; i < *shards; i++ {
		store, err := layout.PrepareShard(i)
		if err != nil {
			logging.L.Fatal().Err(err).Int("shard", i).Msg("could not open shard")
		}
		stores = append(stores, store)
		tables = append(tables, sozu.New(store, hasher, sozu.Config{LargePayloadThreshold: 1024}))
	}

	c, err := chain.New(ctx, &chaincfg.RegressionNetParams, nil, uint32(*pruneDepth))
	if err != nil {
		logging.L.Fatal().Err(err).Msg("could not start chain")
	}
	d := shard.New(tables, hasher, c, 1024)

	logging.L.Info().
		Int("blocks", *blocks).
		Int("coins_per_block", *coinsPerBlock).
		Int("spend_per_block", *spendPerBlock).
		Int("shards", *shards).
		Msg("Starting benchmark")

	res, err := benchmark.Run(ctx, c, d, benchmark.Workload{
		Blocks:        *blocks,
		CoinsPerBlock: *coinsPerBlock,
		SpendPerBlock: *spendPerBlock,
		ScriptSize:    *scriptSize,
		Concurrency:   *concurrency,
		Seed:          *seed,
	})
	d.Close()
	if err != nil {
		logging.L.Err(err).Msg("benchmark failed")
	}

	for i, s := range stores {
		for layer := 0; layer < s.LayerCount(); layer++ {
			st, err := s.Stats(layer)
			if err != nil {
				logging.L.Err(err).Int("shard", i).Int("layer", layer).Msg("stats failed")
				continue
			}
			logging.L.Info().Int("shard", i).Interface("layer", st).Msg("layer stats")
		}
		if err := s.Close(); err != nil {
			logging.L.Err(err).Int("shard", i).Msg("close failed")
		}
	}

	logging.L.Info().
		Int("blocks", res.Blocks).
		Int("produced", res.Produced).
		Int("consumed", res.Consumed).
		Int("checked", res.Checked).
		Int("pruned", res.Pruned).
		Int("mismatches", res.Mismatches).
		Dur("elapsed", res.Elapsed).
		Float64("ops_per_second", res.OpsPerSecond()).
		Msg("Benchmark completed")
}
