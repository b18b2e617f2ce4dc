package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sqlx.DB
}

func NewSQLiteRepository(filePath string) (*SQLiteRepository, error) {
	if filePath == "" {
		filePath = "db.sqlite3"
	}
	db, err := sqlx.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}

	schema := `
	  create table if not exists snapshots (
		instance_id text primary key,
		payload text not null,
		updated_at integer not null
	  );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("using sqlite snapshot store at %s", filePath)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, instanceID string) (*Snapshot, error) {
	query := `select payload from snapshots where instance_id=?;`

	var payload string
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, instanceID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	query := `
	  insert into snapshots (instance_id, payload, updated_at)
	  values (?, ?, ?)
      on conflict(instance_id) do update
         set payload = excluded.payload,
             updated_at = excluded.updated_at;`

	_, err = r.db.ExecContext(ctx, query, instanceID, string(payload), time.Now().UnixMilli())
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
