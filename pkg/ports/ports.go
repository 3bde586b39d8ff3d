// Package ports declares the narrow interfaces the execution subsystem
// consumes from its external collaborators (spec §6): the document store
// that owns persisted workflows, the credential resolver that turns a
// credential id into decrypted secrets, and the handler registry that maps
// a block type string to its BlockHandler plugin. None of these are
// implemented here — internal/adapters provides the DocumentStore and
// CredentialResolver adapters this module ships with and pkg/executor's
// Registry implements HandlerRegistry, the same way the teacher's
// internal/domain/repository
// package declares interfaces that internal/infrastructure/storage
// implements against bun.
package ports

import (
	"context"

	"github.com/netrun/flowengine/pkg/models"
)

// DocumentStore loads workflow documents and persists terminal execution
// snapshots. Content on both sides is opaque JSON outside of the shapes in
// pkg/models.
type DocumentStore interface {
	// GetWorkflow loads a workflow document by id.
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
	// PutExecution persists a terminal execution snapshot.
	PutExecution(ctx context.Context, snapshot *models.Execution) error
	// GetExecution retrieves a previously persisted snapshot by id.
	GetExecution(ctx context.Context, executionID string) (*models.Execution, error)
}

// Credential is the decrypted secret material a CredentialResolver returns
// for a credential id (spec §6).
type Credential struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

// CredentialResolver turns a credential id into decrypted secret material.
// The concrete vault/storage backing it is out of scope (spec §1).
type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID string) (Credential, error)
}

// HandlerResult is what a BlockHandler returns from Invoke (spec §6).
type HandlerResult struct {
	Success    bool
	Output     interface{}
	Error      string
	NextHandle string
}

// ParamSpec describes one declared parameter of a block type.
type ParamSpec struct {
	Name     string
	Type     string
	Required bool
	Default  interface{}
}

// BlockHandler is the runtime implementation of a block type's behavior,
// registered externally by the concrete SSH/FTP/scan/traffic plugins (out
// of scope here, spec §1). The Dispatcher (pkg/engine) invokes it with
// already-resolved parameters and never the raw node config.
type BlockHandler interface {
	Name() string
	InputHandles() []string
	OutputHandles() []string
	Parameters() []ParamSpec
	OutputSchema() map[string]interface{}
	// Invoke runs the handler. cancel is closed when the run's cancel_flag
	// is set; a cooperative handler should treat this as an abort signal
	// and return its best-effort result rather than block indefinitely.
	Invoke(ctx context.Context, resolved map[string]interface{}, cancel <-chan struct{}) (HandlerResult, error)
}

// HandlerRegistry maps a block type string to its BlockHandler (spec §6).
// Registration ("adding a block") happens externally; the Compiler and
// Dispatcher only ever look blocks up, never register them.
type HandlerRegistry interface {
	Lookup(blockType string) (BlockHandler, bool)
}
