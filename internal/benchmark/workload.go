// Package benchmark drives a synthetic chain through the shards and checks
// every coin it wrote against a reference model.
package benchmark

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/setavenger/sozudb/internal/chain"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/shard"
	"github.com/setavenger/sozudb/internal/sozu"
	"github.com/setavenger/sozudb/internal/types"
)

type Workload struct {
	Blocks        int
	CoinsPerBlock int
	// SpendPerBlock is how many live coins each block consumes
	SpendPerBlock int
	ScriptSize    int
	// Concurrency bounds the requests in flight within one block
	Concurrency int
	Seed        int64
}

type Result struct {
	Blocks     int
	Produced   int
	Consumed   int
	Checked    int
	Pruned     int
	Mismatches int
	Elapsed    time.Duration
}

func (r Result) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Produced+r.Consumed) / r.Elapsed.Seconds()
}

type expected struct {
	production  types.BlockAlias
	consumption types.BlockAlias
	satoshis    uint64
}

// Run extends the tip of c block by block. Each block consumes random live
// coins, produces fresh ones and is committed. The reads afterwards are
// compared against what was written.
func Run(ctx context.Context, c *chain.Chain, d *shard.Dispatcher, w Workload) (Result, error) {
	if w.Concurrency <= 0 {
		w.Concurrency = 64
	}
	rng := rand.New(rand.NewSource(w.Seed))
	model := make(map[types.Outpoint]*expected)
	var live []types.Outpoint

	var res Result
	start := time.Now()
	for b := 0; b < w.Blocks; b++ {
		alias, err := c.OpenBlock(ctx, c.Tip().Alias)
		if err != nil {
			return res, err
		}

		spend := w.SpendPerBlock
		if spend > len(live) {
			spend = len(live)
		}
		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		spent := live[len(live)-spend:]
		live = live[:len(live)-spend]

		fresh := make([]types.Outpoint, w.CoinsPerBlock)
		for i := range fresh {
			fresh[i] = syntheticOutpoint(alias, i)
			model[fresh[i]] = &expected{production: alias, satoshis: uint64(rng.Int63n(21e14))}
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(w.Concurrency)
		for _, op := range spent {
			g.Go(func() error {
				return expectSuccess(d.Consume(gCtx, op, alias))
			})
			model[op].consumption = alias
		}
		script := make([]byte, w.ScriptSize)
		for _, op := range fresh {
			payload := types.NewPayload(model[op].satoshis, 0, script)
			g.Go(func() error {
				return expectSuccess(d.Produce(gCtx, op, false, payload, alias))
			})
		}
		if err = g.Wait(); err != nil {
			return res, errors.Wrapf(err, "block %d", alias)
		}

		if err = c.CommitBlock(ctx, alias, blockID(alias)); err != nil {
			return res, err
		}
		live = append(live, fresh...)
		res.Blocks++
		res.Produced += len(fresh)
		res.Consumed += len(spent)

		if (b+1)%100 == 0 {
			logging.L.Info().Int("blocks", b+1).Int("live", len(live)).Msg("workload progress")
		}
	}
	res.Elapsed = time.Since(start)

	err := compare(ctx, c, d, model, &res)
	return res, err
}

// compare reads every modelled coin at the tip. Consumed coins may be gone
// once pruned.
func compare(ctx context.Context, c *chain.Chain, d *shard.Dispatcher, model map[types.Outpoint]*expected, res *Result) error {
	tip := c.Tip().Alias
	for op, want := range model {
		reply, err := d.Get(ctx, op, tip)
		if err != nil {
			return err
		}
		res.Checked++

		if reply.Status == sozu.OutpointNotFound && want.consumption.IsDefined() {
			res.Pruned++
			continue
		}
		if reply.Status != sozu.Success ||
			reply.Coin.Production != want.production ||
			reply.Coin.Consumption != want.consumption ||
			reply.Coin.Satoshis != want.satoshis {
			res.Mismatches++
			logging.L.Warn().Stringer("outpoint", op).Stringer("status", reply.Status).Msg("coin mismatch")
		}
	}
	return nil
}

func expectSuccess(reply shard.Reply, err error) error {
	if err != nil {
		return err
	}
	if reply.Status != sozu.Success {
		return errors.Errorf("unexpected status %s", reply.Status)
	}
	return nil
}

func syntheticOutpoint(block types.BlockAlias, i int) types.Outpoint {
	var seed [8]byte
	binary.LittleEndian.PutUint32(seed[:4], uint32(block))
	binary.LittleEndian.PutUint32(seed[4:], uint32(i))
	return types.Outpoint{TxID: chainhash.DoubleHashH(seed[:]), Index: uint32(i % 4)}
}

func blockID(alias types.BlockAlias) chainhash.Hash {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(alias))
	return chainhash.DoubleHashH(b[:])
}
