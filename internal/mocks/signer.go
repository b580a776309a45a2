package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSigner implements onramp.Signer.
type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) SendNative(ctx context.Context, to string, amount float64, memo string) (string, error) {
	args := m.Called(ctx, to, amount, memo)
	return args.String(0), args.Error(1)
}

func (m *MockSigner) SendSIP010(ctx context.Context, contract, to string, amount float64, memo string) (string, error) {
	args := m.Called(ctx, contract, to, amount, memo)
	return args.String(0), args.Error(1)
}
