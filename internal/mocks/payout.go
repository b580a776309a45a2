package mocks

import (
	"context"

	"github.com/naijaswap/bridge/internal/payout"

	"github.com/stretchr/testify/mock"
)

// MockPayoutProvider implements settlement.PayoutProvider.
type MockPayoutProvider struct {
	mock.Mock
}

func (m *MockPayoutProvider) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*payout.ResolvedAccount, error) {
	args := m.Called(ctx, bankCode, accountNumber)
	acc, _ := args.Get(0).(*payout.ResolvedAccount)
	return acc, args.Error(1)
}

func (m *MockPayoutProvider) InitiateTransfer(ctx context.Context, amountNGN int64, bankCode, accountNumber, reference string) (*payout.TransferResult, error) {
	args := m.Called(ctx, amountNGN, bankCode, accountNumber, reference)
	res, _ := args.Get(0).(*payout.TransferResult)
	return res, args.Error(1)
}

func (m *MockPayoutProvider) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	args := m.Called(rawBody, signatureHeader)
	return args.Bool(0)
}
