// Package shard runs one worker goroutine per coin table. Requests for a
// shard are queued and applied strictly one at a time in arrival order, so
// the tables themselves need no locking.
package shard

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/hashing"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/sozu"
	"github.com/setavenger/sozudb/internal/types"
)

var ErrShardStopped = errors.New("shard stopped")

// Table is the coin table a worker drives.
type Table interface {
	Get(op *types.Outpoint, hash uint64, context types.BlockAlias, lineage types.Lineage) (sozu.GetResult, error)
	AddProduction(
		op *types.Outpoint, hash uint64, isCoinbase bool, payload types.Payload,
		context types.BlockAlias, lineage types.Lineage,
	) (sozu.Status, error)
	AddConsumption(op *types.Outpoint, hash uint64, context types.BlockAlias, lineage types.Lineage) (sozu.Status, error)
	Remove(
		op *types.Outpoint, hash uint64, context types.BlockAlias, opt sozu.RemoveOption, lineage types.Lineage,
	) (sozu.Status, error)
}

// Lineages hands out the lineage snapshot a request is resolved against.
type Lineages interface {
	CurrentLineage() types.Lineage
}

// CoinRecord is an owned copy of a stored coin resolved in a context.
type CoinRecord struct {
	Outpoint    types.Outpoint
	IsCoinbase  bool
	Satoshis    uint64
	NLockTime   uint32
	Script      []byte
	Production  types.BlockAlias
	Consumption types.BlockAlias
}

type Reply struct {
	Status sozu.Status
	Coin   *CoinRecord // set by a successful Get
}

type opKind uint8

const (
	opGet opKind = iota
	opProduce
	opConsume
	opRemove
)

type request struct {
	kind       opKind
	op         types.Outpoint
	hash       uint64
	context    types.BlockAlias
	isCoinbase bool
	payload    types.Payload
	remove     sozu.RemoveOption
	reply      chan result
}

type result struct {
	reply Reply
	err   error
}

type worker struct {
	id       int
	table    Table
	lineages Lineages
	queue    chan *request
	failed   atomic.Pointer[error]
}

type Dispatcher struct {
	hasher  types.OutpointHash
	workers []*worker

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts one worker per table, each with a queue of queueSize. Workers
// load the lineage when they pick a request up, so a block committed while
// the request waited in the queue is no longer writable to it.
func New(tables []Table, hasher types.OutpointHash, lineages Lineages, queueSize int) *Dispatcher {
	d := &Dispatcher{hasher: hasher}
	for i, t := range tables {
		w := &worker{id: i, table: t, lineages: lineages, queue: make(chan *request, queueSize)}
		d.workers = append(d.workers, w)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.run()
		}()
	}
	logging.L.Info().Int("shards", len(tables)).Int("queue_size", queueSize).Msg("shards started")
	return d
}

func (d *Dispatcher) ShardCount() int {
	return len(d.workers)
}

// ShardOf returns the shard op is routed to.
func (d *Dispatcher) ShardOf(op *types.Outpoint) int {
	return hashing.ShardOf(d.hasher.Hash(op), len(d.workers))
}

func (d *Dispatcher) Get(ctx context.Context, op types.Outpoint, blockCtx types.BlockAlias) (Reply, error) {
	return d.do(ctx, &request{kind: opGet, op: op, context: blockCtx})
}

func (d *Dispatcher) Produce(
	ctx context.Context, op types.Outpoint, isCoinbase bool, payload types.Payload, blockCtx types.BlockAlias,
) (Reply, error) {
	return d.do(ctx, &request{kind: opProduce, op: op, isCoinbase: isCoinbase, payload: payload, context: blockCtx})
}

func (d *Dispatcher) Consume(ctx context.Context, op types.Outpoint, blockCtx types.BlockAlias) (Reply, error) {
	return d.do(ctx, &request{kind: opConsume, op: op, context: blockCtx})
}

func (d *Dispatcher) Remove(
	ctx context.Context, op types.Outpoint, blockCtx types.BlockAlias, opt sozu.RemoveOption,
) (Reply, error) {
	return d.do(ctx, &request{kind: opRemove, op: op, context: blockCtx, remove: opt})
}

// do routes req and waits for its reply. A cancelled ctx stops the wait, the
// request itself still runs once queued.
func (d *Dispatcher) do(ctx context.Context, req *request) (Reply, error) {
	req.hash = d.hasher.Hash(&req.op)
	req.reply = make(chan result, 1)
	w := d.workers[hashing.ShardOf(req.hash, len(d.workers))]

	if err := d.enqueue(ctx, w, req); err != nil {
		return Reply{}, err
	}
	select {
	case res := <-req.reply:
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, w *worker, req *request) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errors.Wrap(ErrShardStopped, "dispatcher closed")
	}
	if err := w.failure(); err != nil {
		return err
	}
	select {
	case w.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting requests, lets the workers drain their queues and
// waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	logging.L.Info().Msg("shards stopped")
}

func (w *worker) failure() error {
	if cause := w.failed.Load(); cause != nil {
		return errors.Wrapf(ErrShardStopped, "shard %d: %v", w.id, *cause)
	}
	return nil
}

func (w *worker) run() {
	for req := range w.queue {
		if err := w.failure(); err != nil {
			req.reply <- result{err: err}
			continue
		}
		res := w.handle(req)
		if res.err != nil {
			cause := res.err
			w.failed.Store(&cause)
			logging.L.Error().Err(cause).Int("shard", w.id).Msg("shard quarantined")
		}
		req.reply <- res
	}
}

func (w *worker) handle(req *request) (res result) {
	defer func() {
		if r := recover(); r != nil {
			logging.L.Error().Int("shard", w.id).Str("stack", string(debug.Stack())).Msgf("panic: %v", r)
			res = result{err: fmt.Errorf("shard %d panicked: %v", w.id, r)}
		}
	}()

	var (
		st      sozu.Status
		err     error
		lineage = w.lineages.CurrentLineage()
	)
	switch req.kind {
	case opGet:
		var got sozu.GetResult
		got, err = w.table.Get(&req.op, req.hash, req.context, lineage)
		if err != nil || got.Status != sozu.Success {
			return result{reply: Reply{Status: got.Status}, err: err}
		}
		return result{reply: Reply{Status: sozu.Success, Coin: ownedRecord(got)}}
	case opProduce:
		st, err = w.table.AddProduction(&req.op, req.hash, req.isCoinbase, req.payload, req.context, lineage)
	case opConsume:
		st, err = w.table.AddConsumption(&req.op, req.hash, req.context, lineage)
	case opRemove:
		st, err = w.table.Remove(&req.op, req.hash, req.context, req.remove, lineage)
	}
	return result{reply: Reply{Status: st}, err: err}
}

// ownedRecord copies the coin out of the table's arena and mappings before
// the next request invalidates them.
func ownedRecord(got sozu.GetResult) *CoinRecord {
	c := got.Coin
	payload := c.Payload()
	return &CoinRecord{
		Outpoint:    c.Outpoint(),
		IsCoinbase:  c.IsCoinbase(),
		Satoshis:    payload.Satoshis(),
		NLockTime:   payload.NLockTime(),
		Script:      append([]byte(nil), payload.Script()...),
		Production:  got.Production,
		Consumption: got.Consumption,
	}
}
