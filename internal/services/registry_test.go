package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockService is a minimal service for registry tests.
type MockService struct {
	name             string
	initializeCalled bool
	initializeError  error
}

func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

func (m *MockService) Name() string {
	return m.name
}

func (m *MockService) Initialize() error {
	m.initializeCalled = true
	return m.initializeError
}

func TestRegistry_RegisterService(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.RegisterService(NewMockService("search")))
	err := registry.RegisterService(NewMockService("search"))
	assert.EqualError(t, err, "service search already registered")

	_, err = registry.GetService("missing")
	assert.EqualError(t, err, "service missing not found")
}

func TestRegistry_InitializeAll(t *testing.T) {
	registry := NewRegistry()
	first := NewMockService("first")
	second := NewMockService("second")
	second.initializeError = errors.New("no key")
	third := NewMockService("third")

	require.NoError(t, registry.RegisterService(first))
	require.NoError(t, registry.RegisterService(second))
	require.NoError(t, registry.RegisterService(third))

	err := registry.InitializeAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize service second")
	assert.True(t, first.initializeCalled)
	assert.False(t, third.initializeCalled, "initialization stops at the first failure")
	assert.Equal(t, []string{"first", "second", "third"}, registry.Names())
}

func TestGetServiceAs(t *testing.T) {
	registry := NewRegistry()
	catalog := NewModelCatalogService("")
	require.NoError(t, registry.RegisterService(catalog))
	require.NoError(t, registry.RegisterService(NewMockService("mock")))

	got, err := GetServiceAs[*ModelCatalogService](registry, "model_catalog")
	require.NoError(t, err)
	assert.Same(t, catalog, got)

	_, err = GetServiceAs[*ModelCatalogService](registry, "mock")
	assert.ErrorContains(t, err, "unexpected type")
}
