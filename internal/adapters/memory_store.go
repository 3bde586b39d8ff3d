// Package adapters provides the concrete DocumentStore and
// CredentialResolver implementations the rest of the engine only sees
// through the pkg/ports interfaces (spec.md §6: these are the external
// collaborators the engine is deliberately decoupled from). Grounded on the
// teacher's internal/infrastructure/storage package.
package adapters

import (
	"context"
	"sync"

	"github.com/netrun/flowengine/pkg/models"
)

// MemoryStore is an in-process ports.DocumentStore backed by plain maps,
// the default for tests and for running the engine without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.Execution
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.Execution),
	}
}

// PutWorkflow seeds a workflow document, the way a real deployment's
// authoring UI would persist one before a run ever starts. Not part of
// ports.DocumentStore: workflow authoring is out of scope (spec.md §1),
// this exists purely so callers have a way to make GetWorkflow succeed.
func (s *MemoryStore) PutWorkflow(wf *models.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
}

func (s *MemoryStore) GetWorkflow(_ context.Context, workflowID string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, models.ErrWorkflowNotFound
	}
	clone, err := wf.Clone()
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func (s *MemoryStore) PutExecution(_ context.Context, snapshot *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, executionID string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return exec, nil
}
