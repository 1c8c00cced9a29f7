package dbsqlite

import (
	"context"
	"database/sql"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/logging"
)

// BlockRow is the persisted form of one tracked block. ID is zero until
// the block is committed.
type BlockRow struct {
	Alias     uint32
	Parent    uint32
	Height    uint32
	Committed bool
	ID        chainhash.Hash
}

type BlockStore struct {
	db *sql.DB
}

func NewBlockStore(db *sql.DB) *BlockStore {
	return &BlockStore{db: db}
}

func OpenBlockStore(path string) (*BlockStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return NewBlockStore(db), nil
}

// SaveBlock inserts or replaces the row of b.
func (s *BlockStore) SaveBlock(ctx context.Context, b BlockRow) error {
	var id []byte
	if b.Committed {
		id = b.ID[:]
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks(alias, parent, height, committed, block_id) VALUES (?,?,?,?,?)
		ON CONFLICT(alias) DO UPDATE SET
			committed=excluded.committed,
			block_id=excluded.block_id`,
		b.Alias, b.Parent, b.Height, b.Committed, id,
	)
	if err != nil {
		logging.L.Err(err).Uint32("alias", b.Alias).Msg("failed to save block")
		return err
	}
	return nil
}

// LoadBlocks returns every row in alias order.
func (s *BlockStore) LoadBlocks(ctx context.Context) ([]BlockRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alias, parent, height, committed, block_id FROM blocks ORDER BY alias`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockRow
	for rows.Next() {
		var (
			b  BlockRow
			id []byte
		)
		if err = rows.Scan(&b.Alias, &b.Parent, &b.Height, &b.Committed, &id); err != nil {
			return nil, err
		}
		if id != nil {
			if len(id) != chainhash.HashSize {
				return nil, errors.Errorf("block %d: id of %d bytes", b.Alias, len(id))
			}
			copy(b.ID[:], id)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BlockStore) Close() error {
	return s.db.Close()
}
