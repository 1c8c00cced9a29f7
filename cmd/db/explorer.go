package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/storage"
	"github.com/setavenger/sozudb/internal/types"
)

// Explorer reads the pack store of one shard
type Explorer struct {
	shard int
	dir   string
	store *packstore.LayeredPackStore
}

func NewExplorer(shard int) (*Explorer, error) {
	return newExplorerAt(storage.LayoutFromConfig(), shard)
}

func newExplorerAt(layout storage.Layout, shard int) (*Explorer, error) {
	if _, err := os.Stat(layout.ShardDir(shard)); err != nil {
		return nil, err
	}
	store, err := layout.OpenShard(shard)
	if err != nil {
		return nil, err
	}
	return &Explorer{shard: shard, dir: layout.ShardDir(shard), store: store}, nil
}

func (e *Explorer) Close() error {
	return e.store.Close()
}

// PrintSector prints the header of a pack and optionally its coins
func (e *Explorer) PrintSector(w io.Writer, layer int, sector uint32, coins bool) error {
	p, err := e.store.Read(layer, sector)
	if err != nil {
		return fmt.Errorf("reading layer %d sector %d: %w", layer, sector, err)
	}

	fmt.Fprintf(w, "Shard %d Layer %d Sector %d\n", e.shard, layer, sector)
	fmt.Fprintln(w, "=========================")
	fmt.Fprintf(w, "%-20s: %d\n", "Version", p.Version())
	fmt.Fprintf(w, "%-20s: %d/%d\n", "Write color/count", p.WriteColor(), p.WriteCount())
	fmt.Fprintf(w, "%-20s: %d of %d\n", "Size", p.SizeInBytes(), e.store.SectorBudget(layer))
	fmt.Fprintf(w, "%-20s: %d sigs, %d bytes, saturated %t\n",
		"Filter", p.OutpointSigCount(), p.FilterSizeInBytes(), p.OutpointSigsOverflow())
	fmt.Fprintf(w, "%-20s: %d\n", "Coins", p.CoinCount())
	if err := p.CheckConsistency(); err != nil {
		fmt.Fprintf(w, "%-20s: %v\n", "Consistency", err)
	}

	if !coins || p.CoinCount() == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tOUTPOINT\tCOINBASE\tAMOUNT\tSCRIPT\tEVENTS")
	p.ForEachCoin(func(offset int, c types.Coin) bool {
		payload := c.Payload()
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%d\t%v\n",
			offset, c.Outpoint(), c.IsCoinbase(), btcutil.Amount(payload.Satoshis()),
			payload.ScriptLength(), c.Events())
		return true
	})
	return tw.Flush()
}

// PrintStats prints the fill statistics of every layer
func (e *Explorer) PrintStats(w io.Writer) error {
	fmt.Fprintf(w, "Shard %d\n", e.shard)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tBUDGET\tSECTORS\tCOINS\tBYTES\tFILL\tSIGS\tSATURATED\tFULLEST")
	for layer := 0; layer < e.store.LayerCount(); layer++ {
		st, err := e.store.Stats(layer)
		if err != nil {
			return fmt.Errorf("layer %d: %w", layer, err)
		}
		fill := "-"
		if layer < e.store.FixedLayerCount() {
			capacity := float64(st.Budget) * float64(e.store.SectorCount())
			fill = fmt.Sprintf("%.2f%%", 100*float64(st.Bytes)/capacity)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\t%d\t%d\t%d\n",
			st.Layer, st.Budget, st.Sectors, st.Coins, st.Bytes, fill,
			st.OutpointSigs, st.SaturatedFilters, st.FullestSector)
	}
	return tw.Flush()
}

// PrintJournal prints the packs of a pending write
func (e *Explorer) PrintJournal(w io.Writer) error {
	buf, err := os.ReadFile(packstore.JournalPath(e.dir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Fprintf(w, "Shard %d journal: %d bytes\n", e.shard, len(buf))
	if len(buf) == 0 {
		fmt.Fprintln(w, "  empty, nothing to replay")
		return nil
	}

	packs, err := packstore.ParseJournal(buf)
	if err != nil {
		fmt.Fprintf(w, "  invalid, discarded on next start: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "  complete write of %d packs, replayed on next start\n", len(packs))
	for _, p := range packs {
		printPackLine(w, p)
	}
	return nil
}

func printPackLine(w io.Writer, p coinpack.CoinPack) {
	fmt.Fprintf(w, "  layer %d sector %d: color %d count %d, %d bytes, %d coins, %d sigs\n",
		p.LayerIndex(), p.SectorIndex(), p.WriteColor(), p.WriteCount(),
		p.SizeInBytes(), p.CoinCount(), p.OutpointSigCount())
}

// PrintBlocks lists the block tracker rows
func PrintBlocks(ctx context.Context, w io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	store, err := dbsqlite.OpenBlockStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.LoadBlocks(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tPARENT\tHEIGHT\tCOMMITTED\tID")
	for _, r := range rows {
		id := "-"
		if r.Committed {
			id = r.ID.String()
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%t\t%s\n", r.Alias, r.Parent, r.Height, r.Committed, id)
	}
	return tw.Flush()
}
