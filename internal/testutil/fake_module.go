package testutil

import (
	"context"
	"sync"

	"github.com/stackbill/stackbill/internal/domain/service"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/provisioning"
)

// FakeModule is a provisioning module that records calls and can be told to
// fail a specific operation.
type FakeModule struct {
	mu sync.Mutex

	ModuleName string
	Calls      []string
	Fields     map[string]string

	// FailOn makes the named operation return a capability error
	FailOn map[string]bool
}

var _ provisioning.Module = (*FakeModule)(nil)

// NewFakeModule creates a fake provisioning module
func NewFakeModule(name string) *FakeModule {
	return &FakeModule{
		ModuleName: name,
		FailOn:     make(map[string]bool),
	}
}

func (m *FakeModule) Name() string {
	return m.ModuleName
}

// CallsTo returns how many times the named operation ran
func (m *FakeModule) CallsTo(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *FakeModule) record(op string) (*provisioning.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, op)
	if m.FailOn[op] {
		return nil, ierr.NewError("module operation failed").
			WithHintf("%s refused %s", m.ModuleName, op).
			Mark(ierr.ErrCapability)
	}
	return &provisioning.Result{Fields: m.Fields}, nil
}

func (m *FakeModule) AddService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("add")
}

func (m *FakeModule) EditService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("edit")
}

func (m *FakeModule) CancelService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("cancel")
}

func (m *FakeModule) SuspendService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("suspend")
}

func (m *FakeModule) UnsuspendService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("unsuspend")
}

func (m *FakeModule) RenewService(ctx context.Context, svc *service.Service) (*provisioning.Result, error) {
	return m.record("renew")
}

func (m *FakeModule) ChangeServicePackage(ctx context.Context, svc *service.Service, newPackageID string) (*provisioning.Result, error) {
	return m.record("change_package")
}
