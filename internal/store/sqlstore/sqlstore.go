// Package sqlstore implements store.BidStore on top of SQLite, flattening
// the bag/bid sum type into a single table with nullable witness columns
// rather than two tables or a discriminator column.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	bag_id  BLOB NOT NULL PRIMARY KEY,
	block   BLOB,
	txid    BLOB,
	out_pos INTEGER,
	amount  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_records_block ON records(block);
`

// Store is a SQLite-backed store.BidStore. SQLite permits only one writer
// at a time, so the pool is capped at a single connection — matching the
// tracker's own single-goroutine-per-instance topology.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if _, err := s.db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return s, nil
}

var _ store.BidStore = (*Store)(nil)

func (s *Store) InsertUnconfirmed(ctx context.Context, bag bagtypes.BagID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(bag_id) VALUES (?)
		 ON CONFLICT(bag_id) DO NOTHING`,
		bag.Bytes())
	if err != nil {
		return fmt.Errorf("sqlstore: insert unconfirmed: %w", err)
	}
	return nil
}

func (s *Store) InsertBid(ctx context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records(bag_id, block, txid, out_pos, amount)
		 SELECT ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM records WHERE bag_id = ?)`,
		bag.Bytes(), entry.Proof.Block[:], entry.Proof.Tx.Outpoint.TxID[:],
		entry.Proof.Tx.Outpoint.Index, entry.Amount, bag.Bytes())
	if err != nil {
		return fmt.Errorf("sqlstore: insert bid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: insert bid: %w", err)
	}
	if n == 0 {
		return store.ErrBagAlreadyExists
	}
	return nil
}

func (s *Store) UpdateBid(ctx context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET block = ?, txid = ?, out_pos = ?, amount = ?
		 WHERE bag_id = ?`,
		entry.Proof.Block[:], entry.Proof.Tx.Outpoint.TxID[:],
		entry.Proof.Tx.Outpoint.Index, entry.Amount, bag.Bytes())
	if err != nil {
		return fmt.Errorf("sqlstore: update bid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update bid: %w", err)
	}
	if n == 0 {
		return store.ErrBagDoesNotExist
	}
	return nil
}

func (s *Store) RemoveBag(ctx context.Context, bag bagtypes.BagID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE bag_id = ?`, bag.Bytes())
	if err != nil {
		return fmt.Errorf("sqlstore: remove bag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: remove bag: %w", err)
	}
	if n == 0 {
		return store.ErrBagDoesNotExist
	}
	return nil
}

func (s *Store) RemoveConfirmationWithBlockHash(ctx context.Context, hash chainhash.Hash) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET block = NULL, txid = NULL, out_pos = NULL, amount = NULL
		 WHERE block = ?`,
		hash[:])
	if err != nil {
		return fmt.Errorf("sqlstore: remove confirmation: %w", err)
	}
	return nil
}

func (s *Store) IsBagExists(ctx context.Context, bag bagtypes.BagID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE bag_id = ?`, bag.Bytes()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: is bag exists: %w", err)
	}
	return true, nil
}

func (s *Store) GetRecordsByBlockHash(ctx context.Context, hash chainhash.Hash) ([]bagtypes.BagRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bag_id, block, txid, out_pos, amount FROM records WHERE block = ?`,
		hash[:])
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get records by block hash: %w", err)
	}
	defer rows.Close()

	var out []bagtypes.BagRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: get records by block hash: %w", err)
	}
	return out, nil
}

func (s *Store) GetBlocksCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT block) FROM records WHERE block IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: get blocks count: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(r rowScanner) (bagtypes.BagRecord, error) {
	var (
		bagIDBytes []byte
		blockBytes []byte
		txidBytes  []byte
		outPos     sql.NullInt64
		amount     sql.NullInt64
	)
	if err := r.Scan(&bagIDBytes, &blockBytes, &txidBytes, &outPos, &amount); err != nil {
		return bagtypes.BagRecord{}, fmt.Errorf("sqlstore: scan record: %w", err)
	}

	bag, err := bagtypes.BagIDFromBytes(bagIDBytes)
	if err != nil {
		return bagtypes.BagRecord{}, fmt.Errorf("%w: bag id: %v", store.ErrWrongFormat, err)
	}

	if blockBytes == nil {
		return bagtypes.Unconfirmed(bag), nil
	}

	block, err := chainhash.NewHash(blockBytes)
	if err != nil {
		return bagtypes.BagRecord{}, fmt.Errorf("%w: block hash: %v", store.ErrWrongFormat, err)
	}
	txid, err := chainhash.NewHash(txidBytes)
	if err != nil {
		return bagtypes.BagRecord{}, fmt.Errorf("%w: txid: %v", store.ErrWrongFormat, err)
	}
	if !outPos.Valid || !amount.Valid {
		return bagtypes.BagRecord{}, fmt.Errorf("%w: confirmed row missing out_pos/amount", store.ErrWrongFormat)
	}

	entry := bagtypes.BidEntry{
		Amount: uint64(amount.Int64),
		Proof: bagtypes.BidProof{
			Block: *block,
			Tx: bagtypes.BidTx{
				Outpoint: bagtypes.Outpoint{TxID: *txid, Index: uint32(outPos.Int64)},
				BagID:    bag,
			},
		},
	}
	return bagtypes.Confirmed(bag, entry), nil
}
