package provisioning

import (
	"context"
	"sync"

	"github.com/stackbill/stackbill/internal/domain/service"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// Result carries field updates a module wants written back onto the service
// after an operation, e.g. a provisioned hostname or external row id.
type Result struct {
	Fields map[string]string
}

// Module is the capability interface every provisioning module implements.
// Modules are selected at runtime by package configuration through the
// Registry; module errors are surfaced to callers verbatim, marked as
// capability errors.
type Module interface {
	Name() string

	AddService(ctx context.Context, svc *service.Service) (*Result, error)
	EditService(ctx context.Context, svc *service.Service) (*Result, error)
	CancelService(ctx context.Context, svc *service.Service) (*Result, error)
	SuspendService(ctx context.Context, svc *service.Service) (*Result, error)
	UnsuspendService(ctx context.Context, svc *service.Service) (*Result, error)
	RenewService(ctx context.Context, svc *service.Service) (*Result, error)
	ChangeServicePackage(ctx context.Context, svc *service.Service, newPackageID string) (*Result, error)
}

// Registry resolves provisioning modules by identifier
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty module registry
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

// Register adds a module under its name, replacing any previous registration
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Resolve returns the module registered under the given name
func (r *Registry) Resolve(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, ierr.NewError("provisioning module not registered").
			WithHintf("no module registered under %q", name).
			WithReportableDetails(map[string]any{"module": name}).
			Mark(ierr.ErrNotFound)
	}
	return m, nil
}
