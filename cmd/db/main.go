package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/setavenger/sozudb/internal/config"
	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/dataexport"
	"github.com/setavenger/sozudb/internal/logging"
)

var (
	Version = "0.0.0"

	// Global flags
	datadir    string
	configFile string

	// Sector command flags
	shardIndex  int
	layerIndex  int
	sectorIndex uint32
	showCoins   bool

	// Export command flags
	exportDir string
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(
		&datadir,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory of sozud. Default directory is ~/.sozudb",
	)
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Path to config file (default: datadir/sozu.toml)",
	)
	rootCmd.PersistentFlags().IntVar(
		&shardIndex,
		"shard",
		-1,
		"Shard to inspect, all shards if negative (sector requires one)",
	)

	// Sector command flags
	sectorCmd.Flags().IntVar(&layerIndex, "layer", 0, "Layer of the sector")
	sectorCmd.Flags().Uint32Var(&sectorIndex, "index", 0, "Sector index within the layer")
	sectorCmd.Flags().BoolVar(&showCoins, "coins", true, "List the coins of the sector")

	// Export command flags
	exportCmd.Flags().StringVar(
		&exportDir,
		"out",
		"",
		"Directory for the CSV files (default: datadir/data-export)",
	)
}

var rootCmd = &cobra.Command{
	Use:   "db-explorer",
	Short: "sozudb storage explorer",
	Long: `db-explorer inspects the layers, journals and block tracker of a stopped
sozud instance. Stored packs are never modified.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.BaseDirectory = datadir
		config.SetDirectories()

		logging.L.Info().Msgf("base directory %s", config.BaseDirectory)

		if configFile == "" {
			configFile = path.Join(config.BaseDirectory, config.ConfigFileName)
		}
		if err := config.LoadConfigs(configFile); err != nil {
			logging.L.Fatal().Err(err).Msg("invalid configuration")
		}
	},
}

var sectorCmd = &cobra.Command{
	Use:   "sector",
	Short: "Print one sector",
	Long: `Print the pack header, the filter size and optionally the coins of one
sector. Requires --shard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if shardIndex < 0 {
			return fmt.Errorf("--shard is required")
		}
		explorer, err := NewExplorer(shardIndex)
		if err != nil {
			return fmt.Errorf("error opening shard: %w", err)
		}
		defer explorer.Close()

		return explorer.PrintSector(os.Stdout, layerIndex, sectorIndex, showCoins)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per layer fill statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachShard(func(e *Explorer) error {
			return e.PrintStats(os.Stdout)
		})
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the pending journal of each shard",
	Long: `Show the packs left in a shard journal and whether they form a complete
write that sozud would replay on the next start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachShard(func(e *Explorer) error {
			return e.PrintJournal(os.Stdout)
		})
	},
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the tracked blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return PrintBlocks(cmd.Context(), os.Stdout, config.ChainDBPath)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export coins and blocks to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDir == "" {
			exportDir = filepath.Join(config.BaseDirectory, "data-export")
		}
		stamp := time.Now().Unix()

		err := forEachShard(func(e *Explorer) error {
			path := filepath.Join(exportDir, fmt.Sprintf("coins-shard-%d-%d.csv", e.shard, stamp))
			n, err := dataexport.ExportCoins(e.store, e.shard, path)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d coins of shard %d to %s\n", n, e.shard, path)
			return nil
		})
		if err != nil {
			return err
		}

		blocks, err := dbsqlite.OpenBlockStore(config.ChainDBPath)
		if err != nil {
			return fmt.Errorf("error opening block store: %w", err)
		}
		defer blocks.Close()
		path := filepath.Join(exportDir, fmt.Sprintf("blocks-%d.csv", stamp))
		n, err := dataexport.ExportBlocks(cmd.Context(), blocks, path)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d blocks to %s\n", n, path)
		return nil
	},
}

func forEachShard(fn func(e *Explorer) error) error {
	shards := []int{shardIndex}
	if shardIndex < 0 {
		shards = shards[:0]
		for i := 0; i < config.ShardCount; i++ {
			shards = append(shards, i)
		}
	}
	for _, i := range shards {
		explorer, err := NewExplorer(i)
		if err != nil {
			return fmt.Errorf("error opening shard %d: %w", i, err)
		}
		err = fn(explorer)
		explorer.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	// Add subcommands
	rootCmd.AddCommand(sectorCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(exportCmd)

	// Execute the root command
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
