package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

var (
	LogLevel = "info"
)

const (
	ConfigFileName       string = "sozu.toml"
	DefaultBaseDirectory string = "~/.sozudb"
)

var (
	BaseDirectory = ""
	DBPath        = ""
	LogsPath      = ""
	LogToConsole  = true

	HTTPHost = "127.0.0.1:8000"
)

type chain int

const (
	Unknown chain = iota
	Mainnet
	Signet
	Regtest
	Testnet3
)

// storage and engine vars
var (
	Chain = Unknown

	// ShardCount is the number of independent coin tables, each with its
	// own worker, layers and journal
	ShardCount = 4
	// SectorCount is the number of sectors per layer, the same in every
	// layer. Sector index and filter signature both come from the low bits
	// of the outpoint hash, so it must not be a multiple of a large power of two.
	SectorCount uint32 = 16_383
	// LayerSectorSizes holds the sector size in bytes of each fixed layer
	LayerSectorSizes = []int{8192, 32_768}
	// FinalTier selects the unbounded last layer: pebble, leveldb, memory or none
	FinalTier = "pebble"
	// AtomicSectorWrites lets single layer 0 writes skip the journal
	AtomicSectorWrites = false
	// LargePayloadThreshold routes new coins with bigger payloads to the deepest layer
	LargePayloadThreshold = 1024
	// PruneDepth is how many blocks a consumption has to be buried before the coin can go
	PruneDepth uint32 = 100
	QueueSize         = 1024
	ArenaSize         = 4 << 20
)

// one has to call SetDirectories otherwise the paths will be empty
var (
	LayersPath    string
	FinalTierPath string
	ChainDBPath   string
	SecretPath    string
)

func SetDirectories() {
	BaseDirectory = ResolvePath(BaseDirectory)

	DBPath = filepath.Join(BaseDirectory, "data")
	LogsPath = filepath.Join(BaseDirectory, "logs")

	LayersPath = filepath.Join(DBPath, "layers")
	FinalTierPath = filepath.Join(DBPath, "final")
	ChainDBPath = filepath.Join(DBPath, "chain", "blocks.db")
	SecretPath = filepath.Join(BaseDirectory, "hash.secret")
}

// ResolvePath expands a leading ~ to the home directory.
func ResolvePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func ChainParams() *chaincfg.Params {
	switch Chain {
	case Mainnet:
		return &chaincfg.MainNetParams
	case Signet:
		return &chaincfg.SigNetParams
	case Regtest:
		return &chaincfg.RegressionNetParams
	case Testnet3:
		return &chaincfg.TestNet3Params
	default:
		return nil
	}
}

func ChainToString(c chain) string {
	switch c {
	case Mainnet:
		return "main"
	case Signet:
		return "signet"
	case Regtest:
		return "regtest"
	case Testnet3:
		return "testnet"
	default:
		return "unknown"
	}
}

func parseChain(s string) chain {
	switch s {
	case "main":
		return Mainnet
	case "signet":
		return Signet
	case "regtest":
		return Regtest
	case "testnet":
		return Testnet3
	default:
		return Unknown
	}
}
