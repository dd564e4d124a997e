package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/workflow"
)

// Redis stores JSON documents under prefixed keys and keeps sorted-set
// indexes for listing:
//
//	<prefix>workflow:<id>             workflow JSON
//	<prefix>workflows                 zset, score = updatedAt (ms)
//	<prefix>execution:<id>            execution JSON, optional TTL
//	<prefix>executions                zset, score = startedAt (ms)
//	<prefix>workflow:<id>:executions  zset, score = startedAt (ms)
//
// Index entries whose document expired are dropped lazily on list.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storageError(err, "failed to connect to redis at %s", cfg.Addr)
	}
	return NewRedis(client, cfg, logger), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.ExecutionTTL,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

func (r *Redis) workflowKey(id string) string { return r.prefix + "workflow:" + id }
func (r *Redis) workflowIndex() string { return r.prefix + "workflows" }
func (r *Redis) executionKey(id string) string { return r.prefix + "execution:" + id }
func (r *Redis) executionIndex() string { return r.prefix + "executions" }
func (r *Redis) workflowExecutions(id string) string { return r.prefix + "workflow:" + id + ":executions" }

// Ping checks the server connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return storageError(err, "redis ping failed")
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return storageError(err, "failed to encode workflow %s", w.ID)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.workflowKey(w.ID), data, 0)
		p.ZAdd(ctx, r.workflowIndex(), redis.Z{Score: float64(w.UpdatedAt.UnixMilli()), Member: w.ID})
		return nil
	})
	if err != nil {
		return storageError(err, "failed to save workflow %s", w.ID)
	}
	return nil
}

func (r *Redis) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	data, err := r.client.Get(ctx, r.workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, workflowNotFound(id)
	}
	if err != nil {
		return nil, storageError(err, "failed to load workflow %s", id)
	}
	var w workflow.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, storageError(err, "failed to decode workflow %s", id)
	}
	return &w, nil
}

func (r *Redis) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	docs, err := r.listIndex(ctx, r.workflowIndex(), r.workflowKey)
	if err != nil {
		return nil, storageError(err, "failed to list workflows")
	}
	out := make([]*workflow.Workflow, 0, len(docs))
	for _, doc := range docs {
		var w workflow.Workflow
		if err := json.Unmarshal(doc, &w); err != nil {
			return nil, storageError(err, "failed to decode workflow")
		}
		out = append(out, &w)
	}
	sortWorkflows(out)
	return out, nil
}

// DeleteWorkflow removes the workflow and its executions.
func (r *Redis) DeleteWorkflow(ctx context.Context, id string) error {
	n, err := r.client.Exists(ctx, r.workflowKey(id)).Result()
	if err != nil {
		return storageError(err, "failed to delete workflow %s", id)
	}
	if n == 0 {
		return workflowNotFound(id)
	}
	execIDs, err := r.client.ZRange(ctx, r.workflowExecutions(id), 0, -1).Result()
	if err != nil {
		return storageError(err, "failed to delete workflow %s", id)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.workflowKey(id), r.workflowExecutions(id))
		p.ZRem(ctx, r.workflowIndex(), id)
		for _, eid := range execIDs {
			p.Del(ctx, r.executionKey(eid))
			p.ZRem(ctx, r.executionIndex(), eid)
		}
		return nil
	})
	if err != nil {
		return storageError(err, "failed to delete workflow %s", id)
	}
	return nil
}

func (r *Redis) SaveExecution(ctx context.Context, e *workflow.WorkflowExecution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return storageError(err, "failed to encode execution %s", e.ID)
	}
	score := float64(e.StartedAt.UnixMilli())
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.executionKey(e.ID), data, r.ttl)
		p.ZAdd(ctx, r.executionIndex(), redis.Z{Score: score, Member: e.ID})
		p.ZAdd(ctx, r.workflowExecutions(e.WorkflowID), redis.Z{Score: score, Member: e.ID})
		return nil
	})
	if err != nil {
		return storageError(err, "failed to save execution %s", e.ID)
	}
	return nil
}

func (r *Redis) GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	data, err := r.client.Get(ctx, r.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, executionNotFound(id)
	}
	if err != nil {
		return nil, storageError(err, "failed to load execution %s", id)
	}
	return decodeExecution(id, data)
}

func (r *Redis) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	index := r.executionIndex()
	if workflowID != "" {
		index = r.workflowExecutions(workflowID)
	}
	docs, err := r.listIndex(ctx, index, r.executionKey)
	if err != nil {
		return nil, storageError(err, "failed to list executions")
	}
	out := make([]*workflow.WorkflowExecution, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeExecution("", doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	// 同一毫秒内的记录按 ID 排序，与其他实现保持一致
	sortExecutions(out)
	return out, nil
}

func (r *Redis) DeleteExecution(ctx context.Context, id string) error {
	e, err := r.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.executionKey(id))
		p.ZRem(ctx, r.executionIndex(), id)
		p.ZRem(ctx, r.workflowExecutions(e.WorkflowID), id)
		return nil
	})
	if err != nil {
		return storageError(err, "failed to delete execution %s", id)
	}
	return nil
}

// listIndex reads an index newest first and fetches the documents,
// pruning entries whose document is gone.
func (r *Redis) listIndex(ctx context.Context, index string, key func(string) string) ([][]byte, error) {
	ids, err := r.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	docs := make([][]byte, 0, len(vals))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		docs = append(docs, []byte(s))
	}
	if len(stale) > 0 {
		r.logger.Debug("pruning expired index entries", zap.String("index", index), zap.Int("count", len(stale)))
		if err := r.client.ZRem(ctx, index, stale...).Err(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}
