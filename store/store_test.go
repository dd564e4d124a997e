package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleWorkflow(id string, updated time.Time) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          id,
		Name:        "flow " + id,
		Description: "desc",
		Nodes: []workflow.Node{
			{ID: "s", Type: workflow.NodeTypeStart, Position: workflow.Position{X: 1, Y: 2}, Data: workflow.NodeData{Label: "Start"}},
			{ID: "a", Type: workflow.NodeTypeAgent, Data: workflow.NodeData{Label: "Agent", Tools: []string{"web-search"}}},
		},
		Connections: []workflow.Connection{{ID: "c1", SourceID: "s", TargetID: "a", Label: "go"}},
		Version:     2,
		CreatedAt:   base,
		UpdatedAt:   updated,
	}
}

func sampleExecution(id, workflowID string, started time.Time) *workflow.WorkflowExecution {
	done := started.Add(time.Second)
	return &workflow.WorkflowExecution{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      workflow.StatusCompleted,
		StartedAt:   started,
		CompletedAt: &done,
		Context: workflow.ExecutionContext{
			Input:     "hi",
			Variables: map[string]any{"a": "reply"},
			Messages:  []types.Message{{Role: types.RoleUser, Content: "hi"}},
		},
		Logs: []workflow.ExecutionLog{},
	}
}

func workflowIDs(ws []*workflow.Workflow) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func executionIDs(es []*workflow.WorkflowExecution) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

// runContract exercises the behavior every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("workflow round trip", func(t *testing.T) {
		s := newStore(t)
		w := sampleWorkflow("w1", base)
		require.NoError(t, s.SaveWorkflow(ctx, w))

		got, err := s.GetWorkflow(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, w.Name, got.Name)
		assert.Equal(t, w.Version, got.Version)
		assert.Equal(t, w.Nodes, got.Nodes)
		assert.Equal(t, w.Connections, got.Connections)
		assert.True(t, w.UpdatedAt.Equal(got.UpdatedAt))

		got.Nodes[0].Data.Label = "mutated"
		again, _ := s.GetWorkflow(ctx, "w1")
		assert.Equal(t, "Start", again.Nodes[0].Data.Label)
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)
		w := sampleWorkflow("w1", base)
		require.NoError(t, s.SaveWorkflow(ctx, w))
		w.Name = "renamed"
		w.Version = 3
		w.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, s.SaveWorkflow(ctx, w))

		got, err := s.GetWorkflow(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, 3, got.Version)
		list, _ := s.ListWorkflows(ctx)
		assert.Len(t, list, 1)
	})

	t.Run("list workflows newest first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("old", base)))
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("new", base.Add(time.Hour))))
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("mid", base.Add(time.Minute))))

		list, err := s.ListWorkflows(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid", "old"}, workflowIDs(list))
	})

	t.Run("missing records", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetWorkflow(ctx, "nope")
		assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
		assert.True(t, types.IsErrorCode(s.DeleteWorkflow(ctx, "nope"), types.ErrWorkflowNotFound))
		_, err = s.GetExecution(ctx, "nope")
		assert.True(t, types.IsErrorCode(err, types.ErrExecutionNotFound))
		assert.True(t, types.IsErrorCode(s.DeleteExecution(ctx, "nope"), types.ErrExecutionNotFound))

		list, err := s.ListExecutions(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("executions newest first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveExecution(ctx, sampleExecution("e1", "w1", base)))
		require.NoError(t, s.SaveExecution(ctx, sampleExecution("e2", "w2", base.Add(time.Minute))))
		require.NoError(t, s.SaveExecution(ctx, sampleExecution("e3", "w1", base.Add(time.Hour))))

		byWorkflow, err := s.ListExecutions(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e1"}, executionIDs(byWorkflow))

		all, err := s.ListExecutions(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e2", "e1"}, executionIDs(all))
	})

	t.Run("execution update and delete", func(t *testing.T) {
		s := newStore(t)
		e := sampleExecution("e1", "w1", base)
		e.Status = workflow.StatusPaused
		e.CompletedAt = nil
		e.AwaitingNodeID = "approve"
		require.NoError(t, s.SaveExecution(ctx, e))

		e.Status = workflow.StatusCompleted
		e.AwaitingNodeID = ""
		require.NoError(t, s.SaveExecution(ctx, e))

		got, err := s.GetExecution(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCompleted, got.Status)
		assert.Empty(t, got.AwaitingNodeID)
		assert.Equal(t, "reply", got.Context.Variables["a"])

		require.NoError(t, s.DeleteExecution(ctx, "e1"))
		list, _ := s.ListExecutions(ctx, "w1")
		assert.Empty(t, list)
	})

	t.Run("deleting a workflow drops its executions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("w1", base)))
		require.NoError(t, s.SaveExecution(ctx, sampleExecution("e1", "w1", base)))
		require.NoError(t, s.SaveExecution(ctx, sampleExecution("e2", "w2", base)))

		require.NoError(t, s.DeleteWorkflow(ctx, "w1"))
		_, err := s.GetWorkflow(ctx, "w1")
		assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
		_, err = s.GetExecution(ctx, "e1")
		assert.True(t, types.IsErrorCode(err, types.ErrExecutionNotFound))

		all, _ := s.ListExecutions(ctx, "")
		assert.Equal(t, []string{"e2"}, executionIDs(all))
	})
}

func TestMemory(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestGormSQLite(t *testing.T) {
	n := 0
	runContract(t, func(t *testing.T) Store {
		n++
		s, err := OpenGorm(DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:store_%d?mode=memory&cache=shared", n),
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedis(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		s, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedis_ExecutionTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(client, RedisConfig{KeyPrefix: "ttl:", ExecutionTTL: time.Hour}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, sampleExecution("e1", "w1", base)))
	assert.True(t, mr.Exists("ttl:execution:e1"))
	assert.Equal(t, time.Hour, mr.TTL("ttl:execution:e1"))

	mr.FastForward(2 * time.Hour)
	list, err := s.ListExecutions(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := client.ZCard(ctx, "ttl:workflow:w1:executions").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "expired entries are pruned from the index")
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rs, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer rs.Close()
	var p Pinger = rs
	require.NoError(t, p.Ping(ctx))
	mr.Close()
	assert.True(t, types.IsErrorCode(p.Ping(ctx), types.ErrStorage))

	gs, err := OpenGorm(DatabaseConfig{Driver: "sqlite", DSN: "file:ping?mode=memory&cache=shared"}, nil)
	require.NoError(t, err)
	p = gs
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, gs.Close())
	assert.Error(t, p.Ping(ctx))

	_, ok := Store(NewMemory()).(Pinger)
	assert.False(t, ok)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), RedisConfig{Addr: addr}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrStorage))
}

func TestGorm_StorageErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	s, err := NewGorm(db, DatabaseConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "canvas_workflows"`).WillReturnError(fmt.Errorf("connection timed out"))
	_, err = s.GetWorkflow(ctx, "w1")
	assert.True(t, types.IsErrorCode(err, types.ErrStorage))
	assert.Contains(t, err.Error(), "connection timed out")

	mock.ExpectQuery(`SELECT \* FROM "canvas_workflows"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.GetWorkflow(ctx, "w1")
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))

	mock.ExpectQuery(`SELECT \* FROM "canvas_executions"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "payload"}).AddRow("e1", "{not json"))
	_, err = s.ListExecutions(ctx, "")
	assert.True(t, types.IsErrorCode(err, types.ErrStorage))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(ctx, Config{Driver: "cassandra"}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = OpenGorm(DatabaseConfig{Driver: "oracle"}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}
