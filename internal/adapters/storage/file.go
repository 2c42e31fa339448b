package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
	"github.com/weftworks/weft/internal/xjson"
)

// FileStore persists one JSON document per aggregate under the data
// directory. Writes go through a temp file and os.Rename so a crash can
// not leave a half-written document behind.
type FileStore struct {
	workflowsDir string
	runsDir      string
	logger       *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, domain.NewValidationError("data dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		workflowsDir: filepath.Join(dir, "workflows"),
		runsDir:      filepath.Join(dir, "runs"),
		logger:       logger.With("component", "file-store"),
	}
	for _, sub := range []string{s.workflowsDir, s.runsDir} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, domain.NewInternalError("create storage directories", err)
		}
	}
	return s, nil
}

func (s *FileStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.NewValidationError("workflow id is required")
	}
	path, err := docPath(s.workflowsDir, workflow.ID)
	if err != nil {
		return err
	}
	return s.writeDoc(path, workflow)
}

func (s *FileStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	path, err := docPath(s.workflowsDir, id)
	if err != nil {
		return nil, err
	}

	var workflow domain.Workflow
	if err := s.readDoc(path, &workflow); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("workflow", id)
		}
		return nil, err
	}
	return &workflow, nil
}

func (s *FileStore) DeleteWorkflow(ctx context.Context, id string) error {
	path, err := docPath(s.workflowsDir, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return domain.NewNotFoundError("workflow", id)
		}
		return domain.NewTransientError("delete workflow document", err)
	}
	return nil
}

func (s *FileStore) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	entries, err := os.ReadDir(s.workflowsDir)
	if err != nil {
		return nil, domain.NewTransientError("scan workflows directory", err)
	}

	workflows := make([]*domain.Workflow, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var workflow domain.Workflow
		if err := s.readDoc(filepath.Join(s.workflowsDir, entry.Name()), &workflow); err != nil {
			s.logger.Warn("skipping unreadable workflow document", "file", entry.Name(), "error", err)
			continue
		}
		workflows = append(workflows, &workflow)
	}

	sortWorkflows(workflows)
	return pageWorkflows(workflows, opts), nil
}

func (s *FileStore) SaveExecution(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return domain.NewValidationError("run id is required")
	}
	path, err := docPath(s.runsDir, run.ID)
	if err != nil {
		return err
	}
	return s.writeDoc(path, run)
}

func (s *FileStore) GetExecution(ctx context.Context, id string) (*domain.Run, error) {
	path, err := docPath(s.runsDir, id)
	if err != nil {
		return nil, err
	}

	var run domain.Run
	if err := s.readDoc(path, &run); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("execution", id)
		}
		return nil, err
	}
	return &run, nil
}

func (s *FileStore) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	entries, err := os.ReadDir(s.runsDir)
	if err != nil {
		return nil, domain.NewTransientError("scan runs directory", err)
	}

	runs := make([]*domain.Run, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var run domain.Run
		if err := s.readDoc(filepath.Join(s.runsDir, entry.Name()), &run); err != nil {
			s.logger.Warn("skipping unreadable run document", "file", entry.Name(), "error", err)
			continue
		}
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		runs = append(runs, &run)
	}

	sortRuns(runs)
	return pageRuns(runs, opts), nil
}

func (s *FileStore) HealthCheck(ctx context.Context) ports.HealthStatus {
	status := ports.HealthStatus{Tier: ports.TierFile, Healthy: true}

	marker := filepath.Join(s.workflowsDir, ".weft-health")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		status.Healthy = false
		status.Message = err.Error()
		return status
	}
	_ = os.Remove(marker)
	return status
}

func (s *FileStore) Close() error {
	return nil
}

// writeDoc encodes v indented and replaces path atomically.
func (s *FileStore) writeDoc(path string, v interface{}) error {
	data, err := xjson.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.NewValidationError("document is not serializable").WithCause(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".weft-*")
	if err != nil {
		return domain.NewTransientError("create temp document", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return domain.NewTransientError("write document", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return domain.NewTransientError("write document", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return domain.NewTransientError("replace document", err)
	}
	return nil
}

// readDoc decodes path into out. Missing files surface as the raw
// os error so callers can map them to the right resource.
func (s *FileStore) readDoc(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return domain.NewTransientError("read document", err)
	}
	defer f.Close()

	if err := xjson.NewDecoder(f).Decode(out); err != nil {
		return domain.NewInternalError("corrupt document", err).WithDetail("path", path)
	}
	return nil
}

// docPath joins dir and id, refusing ids that could escape the layout.
func docPath(dir, id string) (string, error) {
	if id == "" {
		return "", domain.NewValidationError("id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", domain.NewValidationError("id must not contain path separators")
	}
	return filepath.Join(dir, id+".json"), nil
}

var _ ports.Store = (*FileStore)(nil)
