package store

import (
	"context"
	"database/sql"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Sqlite struct {
	db *sql.DB
}

// NewSqlite wraps an already-opened database, the schema must have been
// applied by the caller (tests use testutil.SetupService for this).
func NewSqlite(db *sql.DB) Sqlite {
	return Sqlite{db: db}
}

// OpenSqlite opens (or creates) a session snapshot database at the given
// path and applies the schema.
func OpenSqlite(path string) (Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Sqlite{}, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return Sqlite{}, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		return Sqlite{}, err
	}
	return Sqlite{db: db}, nil
}

func (s Sqlite) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT user, password, token, cookie FROM sessions ORDER BY user",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		err := rows.Scan(&r.User, &r.Password, &r.Token, &r.Cookie)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s Sqlite) Save(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM sessions")
	if err != nil {
		return err
	}
	for _, r := range records {
		_, err := tx.ExecContext(
			ctx,
			"INSERT INTO sessions (user, password, token, cookie) VALUES (?, ?, ?, ?)",
			r.User, r.Password, r.Token, r.Cookie,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
