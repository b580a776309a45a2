package indexer

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
	"github.com/stretchr/testify/require"
)

const platformAddress = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE"

func testIndexer(t *testing.T, engine SettlementEngine) *Indexer {
	t.Helper()
	return New(&mocks.MockChainReader{}, engine, Config{
		PlatformAddress: platformAddress,
		USDCContractID:  "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K.usdc-token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractReceipt_NativeTransferMustMatchReferencePrefixAndRecipient(t *testing.T) {
	idx := testIndexer(t, &settlementmock.MockSettlementEngine{})

	tx := chain.Tx{NativeTransfer: &chain.NativeTransfer{
		Recipient: platformAddress,
		Amount:    2_000_000,
		Memo:      referencePrefix + "ABC123",
	}}

	ref, amount, token, ok := idx.extractReceipt(tx)

	require.True(t, ok)
	require.Equal(t, referencePrefix+"ABC123", ref)
	require.Equal(t, 2.0, amount)
	require.Equal(t, store.TokenSTX, token)
}

func TestExtractReceipt_NativeTransferRejectsWrongRecipient(t *testing.T) {
	idx := testIndexer(t, &settlementmock.MockSettlementEngine{})

	tx := chain.Tx{NativeTransfer: &chain.NativeTransfer{
		Recipient: "SP_SOMEONE_ELSE",
		Amount:    2_000_000,
		Memo:      referencePrefix + "ABC123",
	}}

	_, _, _, ok := idx.extractReceipt(tx)

	require.False(t, ok)
}

func TestExtractReceipt_ContractCallRequiresTransferFunctionAndArgs(t *testing.T) {
	idx := testIndexer(t, &settlementmock.MockSettlementEngine{})

	tx := chain.Tx{ContractCall: &chain.ContractCall{
		FunctionName: "mint",
		Args:         []string{"a", "b", "c", "d"},
	}}

	_, _, _, ok := idx.extractReceipt(tx)

	require.False(t, ok)
}

func TestProcessTx_SkipsNonSuccessStatus(t *testing.T) {
	engine := &settlementmock.MockSettlementEngine{}
	idx := testIndexer(t, engine)

	idx.processTx(context.Background(), chain.Tx{Status: chain.TxStatus("pending")})

	engine.AssertNotCalled(t, "ConfirmReceipt", mock.Anything, mock.Anything)
}

func TestProcessTx_MarksProcessedOnlyOnSuccessfulConfirm(t *testing.T) {
	engine := &settlementmock.MockSettlementEngine{}
	idx := testIndexer(t, engine)

	tx := chain.Tx{
		TxId:          "0xabc",
		Status:        chain.StatusSuccess,
		SenderAddress: "SP1SENDER",
		NativeTransfer: &chain.NativeTransfer{
			Recipient: platformAddress,
			Amount:    3_000_000,
			Memo:      referencePrefix + "XYZ",
		},
	}

	engine.On("ConfirmReceipt", mock.Anything, settlement.ConfirmReceiptRequest{
		Reference:     referencePrefix + "XYZ",
		ChainTxId:     "0xabc",
		TokenAmount:   3,
		Token:         store.TokenSTX,
		SenderAddress: "SP1SENDER",
	}).Return(settlement.OutcomePayoutInitiated, &store.Transaction{}, nil)

	idx.processTx(context.Background(), tx)
	_, seen := idx.processed["0xabc"]
	require.True(t, seen)

	// Re-processing the same tx id is a no-op; ConfirmReceipt must not
	// be called a second time.
	idx.processTx(context.Background(), tx)
	engine.AssertNumberOfCalls(t, "ConfirmReceipt", 1)
}

func TestProcessTx_NotFoundLeavesUnprocessedForRetry(t *testing.T) {
	engine := &settlementmock.MockSettlementEngine{}
	idx := testIndexer(t, engine)

	tx := chain.Tx{
		TxId:          "0xdef",
		Status:        chain.StatusSuccess,
		SenderAddress: "SP1SENDER",
		NativeTransfer: &chain.NativeTransfer{
			Recipient: platformAddress,
			Amount:    1_000_000,
			Memo:      referencePrefix + "NOTYET",
		},
	}

	engine.On("ConfirmReceipt", mock.Anything, mock.Anything).
		Return(settlement.ConfirmOutcome(0), nil, settlement.ErrNotFound)

	idx.processTx(context.Background(), tx)

	_, seen := idx.processed["0xdef"]
	require.False(t, seen)
}
