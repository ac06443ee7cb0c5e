// Package journal keeps an append-only SQLite history of settled trades.
//
// The journal is a read model fed by settlement events; it never feeds back
// into state and may be rebuilt by replaying blocks.
package journal

import (
	"context"
	"database/sql"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tolelom/tolmarket/events"

	_ "modernc.org/sqlite"
)

var log = logging.Logger("journal")

// Trade is one settled sale.
type Trade struct {
	TxID        string `json:"tx_id"`
	Height      int64  `json:"height"`
	Kind        string `json:"kind"` // settling event type
	AssetID     string `json:"asset_id"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer"`
	Price       uint64 `json:"price"`
	Fee         uint64 `json:"fee"`
	Treasury    string `json:"treasury"`
	SellerShare uint64 `json:"seller_amount"`
}

// Journal stores trades in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path. Use ":memory:" for tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			tx_id         TEXT PRIMARY KEY,
			height        INTEGER NOT NULL,
			kind          TEXT NOT NULL,
			asset_id      TEXT NOT NULL,
			seller        TEXT NOT NULL,
			buyer         TEXT NOT NULL,
			price         INTEGER NOT NULL,
			fee           INTEGER NOT NULL,
			seller_amount INTEGER NOT NULL,
			treasury      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trades_asset ON trades (asset_id, height);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create trades table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Attach subscribes the journal to settlement events.
func (j *Journal) Attach(emitter *events.Emitter) {
	emitter.Subscribe(j.onSettled, events.SettlementEvents...)
}

func (j *Journal) onSettled(ev events.Event) {
	t := Trade{TxID: ev.TxID, Height: ev.BlockHeight, Kind: string(ev.Type)}
	t.AssetID, _ = ev.Data["asset_id"].(string)
	t.Seller, _ = ev.Data["seller"].(string)
	t.Buyer, _ = ev.Data["buyer"].(string)
	t.Treasury, _ = ev.Data["treasury"].(string)
	t.Price, _ = ev.Data["price"].(uint64)
	t.Fee, _ = ev.Data["fee"].(uint64)
	t.SellerShare, _ = ev.Data["seller_amount"].(uint64)

	if err := j.Record(context.Background(), t); err != nil {
		log.Errorw("record trade", "tx", t.TxID, "err", err)
	}
}

// Record stores t. Recording the same transaction twice is a no-op.
func (j *Journal) Record(ctx context.Context, t Trade) error {
	// SQLite INTEGER is signed; prices above MaxInt64 are stored by bit pattern.
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (tx_id, height, kind, asset_id, seller, buyer, price, fee, seller_amount, treasury)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(tx_id) DO NOTHING`,
		t.TxID, t.Height, t.Kind, t.AssetID, t.Seller, t.Buyer,
		int64(t.Price), int64(t.Fee), int64(t.SellerShare), t.Treasury,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Trades returns the trade history of assetID, oldest first. An empty
// assetID returns every trade.
func (j *Journal) Trades(ctx context.Context, assetID string) ([]Trade, error) {
	q := `SELECT tx_id, height, kind, asset_id, seller, buyer, price, fee, seller_amount, treasury FROM trades`
	var args []any
	if assetID != "" {
		q += ` WHERE asset_id = ?`
		args = append(args, assetID)
	}
	q += ` ORDER BY height ASC, rowid ASC`

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var price, fee, share int64
		if err := rows.Scan(&t.TxID, &t.Height, &t.Kind, &t.AssetID, &t.Seller, &t.Buyer,
			&price, &fee, &share, &t.Treasury); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Price, t.Fee, t.SellerShare = uint64(price), uint64(fee), uint64(share)
		out = append(out, t)
	}
	return out, rows.Err()
}
