package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/sorel-connect/internal/pkg/store"
)

var _ store.Store = (*Database)(nil)

// Database keeps the discovery state in the discovery_state table, one row
// per installation.
type Database struct {
	conn *pgx.Conn
}

func NewDatabase(conn *pgx.Conn) *Database {
	return &Database{
		conn: conn,
	}
}

func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close(context.Background())
}

func (db *Database) Load(ctx context.Context) (store.State, error) {
	const query = `
	SELECT installation_id, record
	FROM discovery_state;
	`

	rows, err := db.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanState(rows)
}

func scanState(rows pgx.Rows) (store.State, error) {
	state := store.State{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		record := store.Record{}
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, err
		}
		state[id] = record
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

// Save replaces the whole state in a single transaction.
func (db *Database) Save(ctx context.Context, state store.State) error {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM discovery_state`); err != nil {
		return err
	}
	for id, record := range state {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO discovery_state (installation_id, record, updated_at)
			VALUES ($1, $2, now())
		`, id, string(data)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
