package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

// MockSorelClient is a mock implementation of sorelClient.
type MockSorelClient struct {
	InitializeFunc func(ctx context.Context) error
	RefreshFunc    func(ctx context.Context) (model.ValueMapping, error)
	CatalogFunc    func() model.Catalog

	refreshes atomic.Int32
}

func (m *MockSorelClient) Initialize(ctx context.Context) error {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx)
	}
	return nil
}

func (m *MockSorelClient) Refresh(ctx context.Context) (model.ValueMapping, error) {
	m.refreshes.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return model.ValueMapping{}, nil
}

func (m *MockSorelClient) Catalog() model.Catalog {
	if m.CatalogFunc != nil {
		return m.CatalogFunc()
	}
	return model.Catalog{}
}

func (m *MockSorelClient) Values() (model.ValueMapping, time.Time) {
	return model.ValueMapping{}, time.Time{}
}
