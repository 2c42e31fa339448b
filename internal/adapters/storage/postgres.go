package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
	"github.com/weftworks/weft/internal/xjson"
)

//go:embed schema.sql
var schemaSQL string

const schemaFile = "schema.sql"

// PostgresStore is the primary tier, backed by pgxpool. Workflow graphs
// live as JSONB documents; runs and their node executions are written
// all-or-nothing in one transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, config domain.PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if config.URL == "" {
		return nil, domain.NewValidationError("postgres url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, domain.NewValidationError("invalid postgres url").WithCause(err)
	}
	if config.MaxConns > 0 {
		cfg.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		cfg.MinConns = config.MinConns
	}
	if config.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.NewTransientError("postgres connect failed", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "postgres-store"),
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.NewTransientError("postgres ping failed", err)
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the embedded schema once, tracked by filename.
func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS weft_schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return domain.NewTransientError("create migrations table", err)
	}

	var applied bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM weft_schema_migrations WHERE filename = $1)`,
		schemaFile,
	).Scan(&applied)
	if err != nil {
		return domain.NewTransientError("check migrations", err)
	}
	if applied {
		return nil
	}

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return domain.NewTransientError("apply schema", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO weft_schema_migrations (filename) VALUES ($1)`,
		schemaFile,
	); err != nil {
		return domain.NewTransientError("record migration", err)
	}

	s.logger.Info("applied schema migration", "file", schemaFile)
	return nil
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.NewValidationError("workflow id is required")
	}

	document, err := xjson.Marshal(workflow)
	if err != nil {
		return domain.NewValidationError("workflow is not serializable").WithCause(err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO weft_workflows (id, name, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		workflow.ID, workflow.Name, document, workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.NewConflictError("workflow already exists", err)
		}
		return domain.NewTransientError("save workflow", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var document []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM weft_workflows WHERE id = $1`, id,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("workflow", id)
		}
		return nil, domain.NewTransientError("get workflow", err)
	}

	var workflow domain.Workflow
	if err := xjson.Unmarshal(document, &workflow); err != nil {
		return nil, domain.NewInternalError("corrupt workflow document", err).WithDetail("id", id)
	}
	return &workflow, nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM weft_workflows WHERE id = $1`, id)
	if err != nil {
		return domain.NewTransientError("delete workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("workflow", id)
	}
	return nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	query := `SELECT document FROM weft_workflows ORDER BY updated_at DESC, id`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, domain.NewTransientError("list workflows", err)
	}
	defer rows.Close()

	workflows := make([]*domain.Workflow, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, domain.NewTransientError("scan workflow", err)
		}
		var workflow domain.Workflow
		if err := xjson.Unmarshal(document, &workflow); err != nil {
			s.logger.Warn("skipping corrupt workflow document", "error", err)
			continue
		}
		workflows = append(workflows, &workflow)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransientError("list workflows", err)
	}
	return workflows, nil
}

func (s *PostgresStore) SaveExecution(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return domain.NewValidationError("run id is required")
	}

	trigger, err := mapJSON(run.Trigger)
	if err != nil {
		return domain.NewValidationError("run trigger is not serializable").WithCause(err)
	}
	runContext, err := mapJSON(run.Context)
	if err != nil {
		return domain.NewValidationError("run context is not serializable").WithCause(err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NewTransientError("begin save execution", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO weft_runs (id, workflow_id, status, trigger_data, context, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`,
		run.ID, run.WorkflowID, string(run.Status), trigger, runContext,
		nullableText(run.Error), run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.NewConflictError("run already exists", err)
		}
		return domain.NewTransientError("save run", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM weft_node_executions WHERE run_id = $1`, run.ID); err != nil {
		return domain.NewTransientError("replace node executions", err)
	}

	for i, node := range run.Nodes {
		input, err := mapJSON(node.Input)
		if err != nil {
			return domain.NewValidationError("node input is not serializable").WithCause(err)
		}
		output, err := mapJSON(node.Output)
		if err != nil {
			return domain.NewValidationError("node output is not serializable").WithCause(err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO weft_node_executions (run_id, position, id, node_id, node_type, status, attempts, input, output, error, started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			run.ID, i, node.ID, node.NodeID, node.NodeType, string(node.Status),
			node.Attempts, input, output, nullableText(node.Error),
			node.StartedAt, node.CompletedAt,
		)
		if err != nil {
			return domain.NewTransientError("save node execution", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewTransientError("commit save execution", err)
	}
	return nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*domain.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, status, trigger_data, context, error, started_at, completed_at
		FROM weft_runs
		WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("execution", id)
		}
		return nil, domain.NewTransientError("get execution", err)
	}

	nodes, err := s.loadNodes(ctx, []string{run.ID})
	if err != nil {
		return nil, err
	}
	run.Nodes = nodes[run.ID]
	return run, nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	query := `
		SELECT id, workflow_id, status, trigger_data, context, error, started_at, completed_at
		FROM weft_runs`
	args := make([]interface{}, 0, 1)
	if workflowID != "" {
		query += ` WHERE workflow_id = $1`
		args = append(args, workflowID)
	}
	query += ` ORDER BY started_at DESC, id`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewTransientError("list executions", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	ids := make([]string, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, domain.NewTransientError("scan execution", err)
		}
		runs = append(runs, run)
		ids = append(ids, run.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransientError("list executions", err)
	}
	if len(runs) == 0 {
		return runs, nil
	}

	nodes, err := s.loadNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		run.Nodes = nodes[run.ID]
	}
	return runs, nil
}

// loadNodes fetches node executions for a set of runs in one query,
// keyed by run id and ordered by position.
func (s *PostgresStore) loadNodes(ctx context.Context, runIDs []string) (map[string][]domain.NodeExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, id, node_id, node_type, status, attempts, input, output, error, started_at, completed_at
		FROM weft_node_executions
		WHERE run_id = ANY($1)
		ORDER BY run_id, position`, runIDs)
	if err != nil {
		return nil, domain.NewTransientError("load node executions", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.NodeExecution, len(runIDs))
	for rows.Next() {
		var (
			runID     string
			node      domain.NodeExecution
			status    string
			input     []byte
			output    []byte
			errMsg    *string
			startedAt *time.Time
		)
		err := rows.Scan(&runID, &node.ID, &node.NodeID, &node.NodeType, &status,
			&node.Attempts, &input, &output, &errMsg, &startedAt, &node.CompletedAt)
		if err != nil {
			return nil, domain.NewTransientError("scan node execution", err)
		}
		node.Status = domain.NodeExecutionStatus(status)
		if errMsg != nil {
			node.Error = *errMsg
		}
		if startedAt != nil {
			node.StartedAt = *startedAt
		}
		if err := decodeMap(input, &node.Input); err != nil {
			return nil, err
		}
		if err := decodeMap(output, &node.Output); err != nil {
			return nil, err
		}
		out[runID] = append(out[runID], node)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransientError("load node executions", err)
	}
	return out, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) ports.HealthStatus {
	status := ports.HealthStatus{Tier: ports.TierPostgres, Healthy: true}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		status.Healthy = false
		status.Message = err.Error()
	}
	return status
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// scanRun reads one weft_runs row; works for QueryRow and Query rows.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run     domain.Run
		status  string
		trigger []byte
		rctx    []byte
		errMsg  *string
	)
	err := row.Scan(&run.ID, &run.WorkflowID, &status, &trigger, &rctx,
		&errMsg, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if errMsg != nil {
		run.Error = *errMsg
	}
	if err := decodeMap(trigger, &run.Trigger); err != nil {
		return nil, err
	}
	if err := decodeMap(rctx, &run.Context); err != nil {
		return nil, err
	}
	return &run, nil
}

func mapJSON(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return xjson.Marshal(m)
}

func decodeMap(data []byte, out *map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := xjson.Unmarshal(data, out); err != nil {
		return domain.NewInternalError("corrupt stored document", err)
	}
	return nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a PostgreSQL unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ ports.Store = (*PostgresStore)(nil)
