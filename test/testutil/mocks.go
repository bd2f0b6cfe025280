package testutil

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/migrator/internal/migration"
)

// MockMigratable mocks the migratable contract. Calls are also recorded in
// order on the shared CallLog when one is set.
type MockMigratable struct {
	mock.Mock
	migration.Descriptor

	Log *CallLog

	ExportFunc func(ctx *migration.ExportContext) error
	ImportFunc func(ctx *migration.ImportContext) error
}

// NewMockMigratable creates a mock with the given id and version.
func NewMockMigratable(id, version string, log *CallLog) *MockMigratable {
	return &MockMigratable{
		Descriptor: migration.NewDescriptor(id, version, id+" title", id+" description", "Test"),
		Log:        log,
	}
}

func (m *MockMigratable) DoExport(ctx *migration.ExportContext) error {
	m.Log.add(m.ID() + ".DoExport")
	args := m.Called(ctx)
	if m.ExportFunc != nil {
		if err := m.ExportFunc(ctx); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockMigratable) DoImport(ctx *migration.ImportContext) error {
	m.Log.add(m.ID() + ".DoImport")
	args := m.Called(ctx)
	if m.ImportFunc != nil {
		if err := m.ImportFunc(ctx); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockMigratable) DoIncompatibleImport(ctx *migration.ImportContext, oldVersion string) error {
	m.Log.add(m.ID() + ".DoIncompatibleImport(" + oldVersion + ")")
	args := m.Called(ctx, oldVersion)
	return args.Error(0)
}

// CallLog records migratable callbacks in invocation order.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}
