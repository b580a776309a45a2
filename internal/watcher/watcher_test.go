package watcher

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/naijaswap/bridge/internal/chain"
	"github.com/naijaswap/bridge/internal/mocks"
	"github.com/naijaswap/bridge/internal/mocks/settlementmock"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
)

func testWatcher(t *testing.T, engine SettlementEngine) *Watcher {
	t.Helper()
	return New(&mocks.MockChainReader{}, engine, "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K.usdc-token", "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOnSuccess_NativeTransferConfirmsWithConvertedAmount(t *testing.T) {
	engine := &settlementmock.MockSettlementEngine{}
	w := testWatcher(t, engine)

	tx := &chain.Tx{
		SenderAddress:  "SP1SENDER",
		NativeTransfer: &chain.NativeTransfer{Amount: 5_000_000},
	}

	engine.On("ConfirmReceipt", mock.Anything, settlement.ConfirmReceiptRequest{
		Reference:     "OFFRAMP_1",
		ChainTxId:     "0xabc",
		TokenAmount:   5,
		Token:         store.TokenSTX,
		SenderAddress: "SP1SENDER",
	}).Return(settlement.OutcomePayoutInitiated, &store.Transaction{}, nil)

	w.onSuccess(context.Background(), "OFFRAMP_1", "0xabc", tx)

	engine.AssertExpectations(t)
}

func TestOnAbort_RecordsFailPendingTimeout(t *testing.T) {
	engine := &settlementmock.MockSettlementEngine{}
	w := testWatcher(t, engine)

	engine.On("FailPendingTimeout", mock.Anything, "OFFRAMP_2", "abort_by_response").Return(nil)

	w.onAbort(context.Background(), "OFFRAMP_2", "abort_by_response")

	engine.AssertExpectations(t)
}
