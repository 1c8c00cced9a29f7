package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/setavenger/sozudb/internal/chain"
	"github.com/setavenger/sozudb/internal/config"
	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/hashing"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/server"
	"github.com/setavenger/sozudb/internal/shard"
	"github.com/setavenger/sozudb/internal/sozu"
	"github.com/setavenger/sozudb/internal/storage"
)

var (
	displayVersion bool
	Version        = "0.0.0"
)

func init() {
	flag.StringVar(
		&config.BaseDirectory,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory for sozud. Default directory is ~/.sozudb",
	)
	flag.BoolVar(
		&displayVersion,
		"version",
		false,
		"show version of sozud",
	)
	flag.Parse()

	if displayVersion {
		// we only need the version for this
		return
	}

	config.SetDirectories()

	err := os.MkdirAll(config.BaseDirectory, 0750)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("error creating base directory")
	}

	logging.L.Info().Msgf("base directory %s", config.BaseDirectory)

	// load after loggers are instantiated
	err = config.LoadConfigs(path.Join(config.BaseDirectory, config.ConfigFileName))
	if err != nil {
		logging.L.Fatal().Err(err).Msg("invalid configuration")
	}

	for _, dir := range []string{config.DBPath, config.LayersPath, config.FinalTierPath, filepath.Dir(config.ChainDBPath)} {
		if err = os.MkdirAll(dir, 0750); err != nil && !errors.Is(err, os.ErrExist) {
			logging.L.Fatal().Err(err).Msgf("error creating %s", dir)
		}
	}

	if config.LogsPath != "" {
		if err := logging.SetLogOutput(config.LogsPath, "sozud.log", config.LogToConsole); err != nil {
			logging.L.Warn().Err(err).Msg("Failed to initialize file logging")
		}
	}
}

func main() {
	if displayVersion {
		fmt.Println("sozud version:", Version) // using fmt because loggers are not initialised
		os.Exit(0)
	}
	defer logging.Close()
	defer logging.L.Info().Msg("Program shut down")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logging.L.Info().Msg("Program Started")

	if err := run(ctx); err != nil {
		logging.L.Err(err).Msg("program failed")
		return
	}
	logging.L.Info().Msg("Program interrupted")
}

func run(ctx context.Context) error {
	secret, err := hashing.LoadOrCreateSecret(config.SecretPath)
	if err != nil {
		return err
	}
	hasher := hashing.NewSipHasher(secret)

	blocks, err := dbsqlite.OpenBlockStore(config.ChainDBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := blocks.Close(); err != nil {
			logging.L.Err(err).Msg("block store close failed")
		}
	}()

	tracker, err := chain.New(ctx, config.ChainParams(), blocks, config.PruneDepth)
	if err != nil {
		return err
	}

	layout := storage.LayoutFromConfig()
	stores := make([]*packstore.LayeredPackStore, 0, config.ShardCount)
	defer func() {
		for i, s := range stores {
			if err := s.Close(); err != nil {
				logging.L.Err(err).Int("shard", i).Msg("pack store close failed")
			}
		}
		logging.L.Debug().Msg("pack stores closed")
	}()

	tables := make([]shard.Table, 0, config.ShardCount)
	for i := 0; i < config.ShardCount; i++ {
		store, err := layout.PrepareShard(i)
		if err != nil {
			return err
		}
		stores = append(stores, store)
		tables = append(tables, sozu.New(store, hasher, sozu.Config{
			LargePayloadThreshold: config.LargePayloadThreshold,
			ArenaSize:             config.ArenaSize,
		}))
	}

	shards := shard.New(tables, hasher, tracker, config.QueueSize)
	// stop the workers before the stores they write to are closed
	defer shards.Close()

	return server.RunServer(ctx, config.HTTPHost, &server.ApiHandler{Chain: tracker, Shards: shards})
}
