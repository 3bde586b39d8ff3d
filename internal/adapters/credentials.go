package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/netrun/flowengine/pkg/ports"
)

// StaticCredentialResolver resolves credential ids against an in-memory
// map. Real credential storage (encryption at rest, rotation, audit) is
// explicitly out of scope (spec.md §1 "credential storage/decryption");
// this stands in for whatever backend a deployment wires in, the same way
// pkg/blocktest stands in for real block handlers.
type StaticCredentialResolver struct {
	mu    sync.RWMutex
	creds map[string]ports.Credential
}

// NewStaticCredentialResolver builds a resolver over the given seed map.
func NewStaticCredentialResolver(seed map[string]ports.Credential) *StaticCredentialResolver {
	r := &StaticCredentialResolver{creds: make(map[string]ports.Credential, len(seed))}
	for k, v := range seed {
		r.creds[k] = v
	}
	return r
}

// Put adds or replaces one credential.
func (r *StaticCredentialResolver) Put(id string, cred ports.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[id] = cred
}

func (r *StaticCredentialResolver) Resolve(_ context.Context, credentialID string) (ports.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[credentialID]
	if !ok {
		return ports.Credential{}, fmt.Errorf("credential %q not found", credentialID)
	}
	return cred, nil
}
