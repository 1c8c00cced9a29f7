package config

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/packstore"
)

const (
	minSectorSize = 4096
	// maxSectorCountShift bounds the power of two in sector_count. Each
	// factor of two halves the distinct filter signatures a sector can hold.
	maxSectorCountShift = 4
)

func LoadConfigs(pathToConfig string) error {
	// Set the file name of the configurations file
	viper.SetConfigFile(pathToConfig)

	// Handle errors reading the config file
	if err := viper.ReadInConfig(); err != nil {
		logging.L.Warn().Err(err).Msg("No config file detected")
	}

	/* set defaults */
	viper.SetDefault("http_host", HTTPHost)
	viper.SetDefault("chain", "signet")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_path", "")
	viper.SetDefault("log_to_console", true)

	viper.SetDefault("shard_count", ShardCount)
	viper.SetDefault("sector_count", SectorCount)
	viper.SetDefault("layer_sector_sizes", LayerSectorSizes)
	viper.SetDefault("final_tier", FinalTier)
	viper.SetDefault("atomic_sector_writes", AtomicSectorWrites)
	viper.SetDefault("large_payload_threshold", LargePayloadThreshold)
	viper.SetDefault("prune_depth", PruneDepth)
	viper.SetDefault("queue_size", QueueSize)
	viper.SetDefault("arena_size", ArenaSize)

	// Bind viper keys to environment variables (optional, for backup)
	viper.AutomaticEnv()
	viper.BindEnv("http_host", "HTTP_HOST")
	viper.BindEnv("chain", "CHAIN")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.BindEnv("shard_count", "SHARD_COUNT")
	viper.BindEnv("sector_count", "SECTOR_COUNT")
	viper.BindEnv("final_tier", "FINAL_TIER")
	viper.BindEnv("atomic_sector_writes", "ATOMIC_SECTOR_WRITES")
	viper.BindEnv("prune_depth", "PRUNE_DEPTH")

	/* read and set config variables */
	// General
	HTTPHost = viper.GetString("http_host")
	LogLevel = viper.GetString("log_level")
	if p := viper.GetString("log_path"); p != "" {
		LogsPath = p
	}
	LogToConsole = viper.GetBool("log_to_console")

	// Storage
	ShardCount = viper.GetInt("shard_count")
	SectorCount = viper.GetUint32("sector_count")
	LayerSectorSizes = viper.GetIntSlice("layer_sector_sizes")
	FinalTier = viper.GetString("final_tier")
	AtomicSectorWrites = viper.GetBool("atomic_sector_writes")

	// Engine
	LargePayloadThreshold = viper.GetInt("large_payload_threshold")
	PruneDepth = viper.GetUint32("prune_depth")
	QueueSize = viper.GetInt("queue_size")
	ArenaSize = viper.GetInt("arena_size")

	chainInput := viper.GetString("chain")
	Chain = parseChain(chainInput)
	if Chain == Unknown {
		return errors.Errorf("chain %q undefined", chainInput)
	}

	logging.SetLogLevel(logging.ParseLevel(LogLevel))

	logging.L.Info().Msgf("chain: %s", ChainToString(Chain))
	logging.L.Info().Msgf("shard_count: %d", ShardCount)
	logging.L.Info().Msgf("sector_count: %d", SectorCount)
	logging.L.Info().Msgf("layer_sector_sizes: %v", LayerSectorSizes)
	logging.L.Info().Msgf("final_tier: %s", FinalTier)
	if AtomicSectorWrites {
		logging.L.Warn().Msg("atomic_sector_writes is on, layer 0 writes skip the journal")
	}

	return Validate()
}

// Validate checks the storage layout. A layout change after the first run
// needs a fresh data directory.
func Validate() error {
	if ShardCount <= 0 {
		return errors.New("shard_count must be positive")
	}
	if SectorCount == 0 {
		return errors.New("sector_count must be positive")
	}
	if shift := bits.TrailingZeros32(SectorCount); shift > maxSectorCountShift {
		return errors.Errorf("sector_count %d is a multiple of %d, layer 0 filters could only tell %d signatures apart",
			SectorCount, 1<<shift, 1<<(16-min(shift, 16)))
	} else if shift > 0 {
		logging.L.Warn().Uint32("sector_count", SectorCount).Msg("even sector_count weakens the layer 0 filter, prefer an odd count")
	}
	if QueueSize <= 0 {
		return errors.New("queue_size must be positive")
	}
	if len(LayerSectorSizes) == 0 {
		return errors.New("layer_sector_sizes needs at least one layer")
	}

	layers := len(LayerSectorSizes)
	switch FinalTier {
	case "pebble", "leveldb", "memory":
		layers++
	case "none":
	default:
		return errors.Errorf("final_tier %q unknown", FinalTier)
	}
	if layers > packstore.MaxLayers {
		return errors.Errorf("%d layers configured, at most %d", layers, packstore.MaxLayers)
	}

	for i, size := range LayerSectorSizes {
		if size < minSectorSize {
			return errors.Errorf("layer %d sector size %d below %d", i, size, minSectorSize)
		}
	}
	saturated := coinpack.HeaderSize + coinpack.MaxOutpointSigs*2
	if LayerSectorSizes[0] < 2*saturated {
		return errors.Errorf("layer 0 sector size %d cannot hold a full filter twice (%d)",
			LayerSectorSizes[0], 2*saturated)
	}
	if LargePayloadThreshold > LayerSectorSizes[0]/4 {
		return errors.Errorf("large_payload_threshold %d above a quarter of layer 0 (%d)",
			LargePayloadThreshold, LayerSectorSizes[0]/4)
	}
	return nil
}
