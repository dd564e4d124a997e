package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentcanvas/internal/database"
	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

type workflowRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Name        string    `gorm:"size:255"`
	Description string    `gorm:"type:text"`
	Version     int       `gorm:"not null;default:1"`
	Graph       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;index"`
}

func (workflowRecord) TableName() string { return "canvas_workflows" }

type executionRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	WorkflowID string    `gorm:"size:64;index"`
	Status     string    `gorm:"size:32"`
	StartedAt  time.Time `gorm:"index"`
	Payload    string    `gorm:"type:text"`
}

func (executionRecord) TableName() string { return "canvas_executions" }

type graph struct {
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
}

// Gorm stores workflows and executions in a SQL database.
type Gorm struct {
	pool   *database.Pool
	logger *zap.Logger
}

// OpenGorm connects, migrates the schema and returns the store.
func OpenGorm(cfg DatabaseConfig, logger *zap.Logger) (*Gorm, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, types.Errorf(types.ErrInvalidRequest, "unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, storageError(err, "failed to open %s database", cfg.Driver)
	}
	g, err := NewGorm(db, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := g.Migrate(context.Background()); err != nil {
		_ = g.Close()
		return nil, err
	}
	return g, nil
}

// NewGorm wraps an open database. Call Migrate before first use on an
// empty schema.
func NewGorm(db *gorm.DB, cfg DatabaseConfig, logger *zap.Logger) (*Gorm, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg := database.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	pool, err := database.NewPool(db, poolCfg, logger)
	if err != nil {
		return nil, storageError(err, "failed to configure database pool")
	}
	return &Gorm{pool: pool, logger: logger.With(zap.String("component", "gorm_store"))}, nil
}

// Migrate creates or updates the tables.
func (g *Gorm) Migrate(ctx context.Context) error {
	if err := g.pool.DB().WithContext(ctx).AutoMigrate(&workflowRecord{}, &executionRecord{}); err != nil {
		return storageError(err, "failed to migrate schema")
	}
	return nil
}

// Ping checks the database connection.
func (g *Gorm) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// Close releases the connection pool.
func (g *Gorm) Close() error {
	return g.pool.Close()
}

func (g *Gorm) db(ctx context.Context) *gorm.DB {
	return g.pool.DB().WithContext(ctx)
}

func (g *Gorm) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	data, err := json.Marshal(graph{Nodes: w.Nodes, Connections: w.Connections})
	if err != nil {
		return storageError(err, "failed to encode workflow %s", w.ID)
	}
	rec := workflowRecord{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Graph:       string(data),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	if err := g.db(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return storageError(err, "failed to save workflow %s", w.ID)
	}
	return nil
}

func (g *Gorm) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var rec workflowRecord
	err := g.db(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflowNotFound(id)
	}
	if err != nil {
		return nil, storageError(err, "failed to load workflow %s", id)
	}
	return rec.toWorkflow()
}

func (g *Gorm) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	var recs []workflowRecord
	if err := g.db(ctx).Order("updated_at DESC").Order("id").Find(&recs).Error; err != nil {
		return nil, storageError(err, "failed to list workflows")
	}
	out := make([]*workflow.Workflow, 0, len(recs))
	for _, rec := range recs {
		w, err := rec.toWorkflow()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// DeleteWorkflow removes the workflow and its executions in one transaction.
func (g *Gorm) DeleteWorkflow(ctx context.Context, id string) error {
	err := g.pool.TxRetry(ctx, 3, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&workflowRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return workflowNotFound(id)
		}
		return tx.Where("workflow_id = ?", id).Delete(&executionRecord{}).Error
	})
	if err != nil {
		return storageError(err, "failed to delete workflow %s", id)
	}
	return nil
}

func (rec workflowRecord) toWorkflow() (*workflow.Workflow, error) {
	var gr graph
	if rec.Graph != "" {
		if err := json.Unmarshal([]byte(rec.Graph), &gr); err != nil {
			return nil, storageError(err, "failed to decode workflow %s", rec.ID)
		}
	}
	w := &workflow.Workflow{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Nodes:       gr.Nodes,
		Connections: gr.Connections,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if w.Nodes == nil {
		w.Nodes = []workflow.Node{}
	}
	if w.Connections == nil {
		w.Connections = []workflow.Connection{}
	}
	return w, nil
}

func (g *Gorm) SaveExecution(ctx context.Context, e *workflow.WorkflowExecution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return storageError(err, "failed to encode execution %s", e.ID)
	}
	rec := executionRecord{
		ID:         e.ID,
		WorkflowID: e.WorkflowID,
		Status:     string(e.Status),
		StartedAt:  e.StartedAt,
		Payload:    string(data),
	}
	if err := g.db(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return storageError(err, "failed to save execution %s", e.ID)
	}
	return nil
}

func (g *Gorm) GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	var rec executionRecord
	err := g.db(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, executionNotFound(id)
	}
	if err != nil {
		return nil, storageError(err, "failed to load execution %s", id)
	}
	return decodeExecution(rec.ID, []byte(rec.Payload))
}

func (g *Gorm) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	q := g.db(ctx).Order("started_at DESC").Order("id")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	var recs []executionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storageError(err, "failed to list executions")
	}
	out := make([]*workflow.WorkflowExecution, 0, len(recs))
	for _, rec := range recs {
		e, err := decodeExecution(rec.ID, []byte(rec.Payload))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (g *Gorm) DeleteExecution(ctx context.Context, id string) error {
	res := g.db(ctx).Where("id = ?", id).Delete(&executionRecord{})
	if res.Error != nil {
		return storageError(res.Error, "failed to delete execution %s", id)
	}
	if res.RowsAffected == 0 {
		return executionNotFound(id)
	}
	return nil
}

func decodeExecution(id string, data []byte) (*workflow.WorkflowExecution, error) {
	var e workflow.WorkflowExecution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, storageError(err, "failed to decode execution %s", id)
	}
	return &e, nil
}
