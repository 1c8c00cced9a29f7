// Package dataexport dumps stored coins and tracked blocks to CSV.
package dataexport

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/types"
)

func createCSV(path string) (*os.File, *csv.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, nil, err
	}
	logging.L.Info().Msgf("Writing to %s", path)
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, csv.NewWriter(file), nil
}

/* Coins */

var coinHeader = []string{
	"shard", "layer", "sector", "txid", "vout", "coinbase", "value", "lockTime", "scriptPubKey", "events",
}

// ExportCoins writes every coin of every layer of store to path.
func ExportCoins(store *packstore.LayeredPackStore, shard int, path string) (int, error) {
	file, w, err := createCSV(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	n, err := WriteCoins(w, store, shard)
	if err != nil {
		return n, err
	}
	return n, file.Sync()
}

// WriteCoins streams one record per coin, sector by sector, so the export
// never holds more than one pack.
func WriteCoins(w *csv.Writer, store *packstore.LayeredPackStore, shard int) (int, error) {
	if err := w.Write(coinHeader); err != nil {
		return 0, err
	}
	count := 0
	for layer := 0; layer < store.LayerCount(); layer++ {
		for sector := uint32(0); sector < store.SectorCount(); sector++ {
			p, err := store.Read(layer, sector)
			if err != nil {
				return count, fmt.Errorf("layer %d sector %d: %w", layer, sector, err)
			}
			p.ForEachCoin(func(_ int, c types.Coin) bool {
				err = w.Write(coinRecord(shard, layer, sector, c))
				count++
				return err == nil
			})
			if err != nil {
				return count, err
			}
		}
	}
	w.Flush()
	return count, w.Error()
}

func coinRecord(shard, layer int, sector uint32, c types.Coin) []string {
	op := c.Outpoint()
	payload := c.Payload()
	events := make([]string, 0, c.EventCount())
	for _, ev := range c.Events() {
		events = append(events, ev.String())
	}
	return []string{
		strconv.Itoa(shard),
		strconv.Itoa(layer),
		strconv.FormatUint(uint64(sector), 10),
		op.TxID.String(),
		strconv.FormatUint(uint64(op.Index), 10),
		strconv.FormatBool(c.IsCoinbase()),
		strconv.FormatUint(payload.Satoshis(), 10),
		strconv.FormatUint(uint64(payload.NLockTime()), 10),
		hex.EncodeToString(payload.Script()),
		strings.Join(events, " "),
	}
}

/* Blocks */

func ExportBlocks(ctx context.Context, store *dbsqlite.BlockStore, path string) (int, error) {
	file, w, err := createCSV(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	rows, err := store.LoadBlocks(ctx)
	if err != nil {
		return 0, err
	}
	if err = writeBlocks(w, rows); err != nil {
		return 0, err
	}
	return len(rows), file.Sync()
}

func writeBlocks(w *csv.Writer, rows []dbsqlite.BlockRow) error {
	records := [][]string{{"alias", "parent", "height", "committed", "blockHash"}}
	for _, r := range rows {
		hash := ""
		if r.Committed {
			hash = r.ID.String()
		}
		records = append(records, []string{
			strconv.FormatUint(uint64(r.Alias), 10),
			strconv.FormatUint(uint64(r.Parent), 10),
			strconv.FormatUint(uint64(r.Height), 10),
			strconv.FormatBool(r.Committed),
			hash,
		})
	}
	return w.WriteAll(records)
}

