package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(dbURL string) (*PostgresRepository, error) {
	db, err := sqlx.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// make sure the required table exists
	schema := `
	  create table if not exists snapshots (
		instance_id text primary key,
		payload text not null,
		updated_at bigint not null
	  );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("connected to postgres snapshot store")
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Get(ctx context.Context, instanceID string) (*Snapshot, error) {
	query := `select payload from snapshots where instance_id=$1;`

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

func (r *PostgresRepository) Put(ctx context.Context, instanceID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	query := `
	  insert into snapshots (instance_id, payload, updated_at)
	  values ($1, $2, $3)
      on conflict(instance_id) do update
         set payload = excluded.payload,
             updated_at = excluded.updated_at;`

	_, err = r.db.ExecContext(ctx, query, instanceID, string(payload), time.Now().UnixMilli())
	return err
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
