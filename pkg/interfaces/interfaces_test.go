package interfaces_test

import (
	"context"
	"testing"

	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Mock implementations for testing

type mockConnection struct{}

func (m *mockConnection) WriteJSON(v interface{}) error                       { return nil }
func (m *mockConnection) Close() error                                        { return nil }
func (m *mockConnection) GetUserID() string                                   { return "" }
func (m *mockConnection) GetRole() string                                     { return "" }
func (m *mockConnection) GetClassCode() string                                { return "" }
func (m *mockConnection) IsAuthenticated() bool                               { return false }
func (m *mockConnection) SetCredentials(userID, role, classCode string) error { return nil }

type mockStore struct{}

func (m *mockStore) Get(ctx context.Context, path string) (*types.Document, error) { return nil, nil }
func (m *mockStore) Create(ctx context.Context, path string, fields types.Fields) error {
	return nil
}
func (m *mockStore) Set(ctx context.Context, path string, fields types.Fields) error { return nil }
func (m *mockStore) Update(ctx context.Context, path string, fields types.Fields) error {
	return nil
}
func (m *mockStore) Delete(ctx context.Context, path string) error { return nil }
func (m *mockStore) Add(ctx context.Context, collection string, fields types.Fields) (string, error) {
	return "", nil
}
func (m *mockStore) Commit(ctx context.Context, writes []types.Write) error { return nil }
func (m *mockStore) List(ctx context.Context, query types.Query) ([]*types.Document, error) {
	return nil, nil
}
func (m *mockStore) Subscribe(ctx context.Context, query types.Query) (interfaces.Subscription, error) {
	return nil, nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

// Architectural Validation Tests - Ensure interfaces are properly defined

func TestInterfaces_ArchitecturalCompliance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.DocumentStore = &mockStore{}
	var _ interfaces.Notifier = interfaces.NotifierFunc(nil)
}

func TestNotifierFunc_Forwards(t *testing.T) {
	var got []types.Intent
	n := interfaces.NotifierFunc(func(intent types.Intent) {
		got = append(got, intent)
	})

	n.Notify(types.Intent{Kind: types.IntentHandRaised, StudentID: "s1"})

	if len(got) != 1 || got[0].StudentID != "s1" {
		t.Fatalf("expected one forwarded intent, got %+v", got)
	}
}
