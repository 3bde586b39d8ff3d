package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/netrun/flowengine/pkg/models"
)

// DBConfig configures the Postgres connection pool, grounded on the
// teacher's internal/infrastructure/storage.Config/NewDB.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens a bun.DB over a Postgres connection pool and verifies
// connectivity with a ping.
func OpenPostgres(cfg DBConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	db.RegisterModel((*workflowRow)(nil), (*executionRow)(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	slog.Info("database connection established", slog.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// workflowRow and executionRow store the domain structs as opaque jsonb
// payloads: the schema these documents take is owned by pkg/models, not by
// this storage adapter, so there is no column-per-field mapping to keep in
// sync.
type workflowRow struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID   string `bun:",pk"`
	Data []byte `bun:"data,type:jsonb,notnull"`
}

type executionRow struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID   string `bun:",pk"`
	Data []byte `bun:"data,type:jsonb,notnull"`
}

// BunStore is the Postgres-backed ports.DocumentStore.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an already-opened bun.DB.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// CreateSchema creates the workflows/executions tables if they don't exist
// yet, for local/dev bring-up without a separate migration tool.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*workflowRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewCreateTable().Model((*executionRow)(nil)).IfNotExists().Exec(ctx)
	return err
}

// PutWorkflow upserts a workflow document.
func (s *BunStore) PutWorkflow(ctx context.Context, wf *models.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	row := &workflowRow{ID: wf.ID, Data: data}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return err
}

func (s *BunStore) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	row := &workflowRow{}
	err := s.db.NewSelect().Model(row).Where("id = ?", workflowID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	var wf models.Workflow
	if err := json.Unmarshal(row.Data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *BunStore) PutExecution(ctx context.Context, snapshot *models.Execution) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	row := &executionRow{ID: snapshot.ID, Data: data}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return err
}

func (s *BunStore) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	row := &executionRow{}
	err := s.db.NewSelect().Model(row).Where("id = ?", executionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var exec models.Execution
	if err := json.Unmarshal(row.Data, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}
