// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/xoflow/internal/transport"
)

// -- Location Mock --

// MockLocation mocks transport.Location.
type MockLocation struct {
	mock.Mock
}

var _ transport.Location = (*MockLocation)(nil)

func (m *MockLocation) Fragment(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockLocation) Assign(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

// -- Opener Mock --

// MockOpener mocks transport.Opener.
type MockOpener struct {
	mock.Mock
}

var _ transport.Opener = (*MockOpener)(nil)

func (m *MockOpener) Open(ctx context.Context, url string) (transport.Window, error) {
	args := m.Called(ctx, url)
	var win transport.Window
	if w := args.Get(0); w != nil {
		win = w.(transport.Window)
	}
	return win, args.Error(1)
}

// -- Window Mock --

// MockWindow mocks transport.Window.
type MockWindow struct {
	mock.Mock
}

var _ transport.Window = (*MockWindow)(nil)

func (m *MockWindow) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockWindow) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockWindow) Closed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// -- User Agent Mock --

// MockUserAgentSource mocks the flow controller's user agent source.
type MockUserAgentSource struct {
	mock.Mock
}

func (m *MockUserAgentSource) UserAgent(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
