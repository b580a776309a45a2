package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/naijaswap/bridge/internal/liquidity"
	"github.com/naijaswap/bridge/internal/mocks"
	"github.com/naijaswap/bridge/internal/payout"
	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flatRateFor(rate float64) PriceSourceFunc {
	return func(ctx context.Context) func(store.Token) float64 {
		return func(store.Token) float64 { return rate }
	}
}

func newTestEngine(t *testing.T) (*Engine, *mocks.MockTransactionStore, *mocks.MockPayoutProvider, *mocks.MockLiquidityGuard, *mocks.MockManualSettlementReporter) {
	t.Helper()
	st := &mocks.MockTransactionStore{}
	pp := &mocks.MockPayoutProvider{}
	guard := &mocks.MockLiquidityGuard{}
	reporter := &mocks.MockManualSettlementReporter{}

	eng := New(st, flatRateFor(1000), pp, guard, reporter, Config{
		MinToken:        1,
		MaxToken:        1000,
		FlatFeeNGN:      100,
		PlatformAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
	}, testLogger())
	return eng, st, pp, guard, reporter
}

func TestInitializeOfframp_RejectsBadAddress(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)

	_, err := eng.InitializeOfframp(context.Background(), InitOfframpRequest{
		Token:         store.TokenUSDC,
		TokenAmount:   10,
		SenderAddress: "not-a-stacks-address",
		BankCode:      "044",
		AccountNumber: "0123456789",
	})

	require.ErrorIs(t, err, ErrValidation)
}

func TestInitializeOfframp_InsufficientLiquidity(t *testing.T) {
	eng, st, pp, guard, _ := newTestEngine(t)

	pp.On("ResolveAccount", mock.Anything, "044", "0123456789").
		Return(&payout.ResolvedAccount{AccountName: "Jane Doe", BankName: "Access Bank"}, nil)
	guard.On("CheckLiquidity", mock.Anything, mock.Anything).
		Return(liquidity.CheckResult{Result: liquidity.ResultInsufficient, Available: 500, Shortfall: 5000})

	_, err := eng.InitializeOfframp(context.Background(), InitOfframpRequest{
		Token:         store.TokenUSDC,
		TokenAmount:   10,
		SenderAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
		BankCode:      "044",
		AccountNumber: "0123456789",
	})

	require.ErrorIs(t, err, ErrInsufficientLiquid)
	st.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitializeOfframp_PersistsPendingRecord(t *testing.T) {
	eng, st, pp, guard, _ := newTestEngine(t)

	pp.On("ResolveAccount", mock.Anything, "044", "0123456789").
		Return(&payout.ResolvedAccount{AccountName: "Jane Doe", BankName: "Access Bank"}, nil)
	guard.On("CheckLiquidity", mock.Anything, mock.Anything).
		Return(liquidity.CheckResult{Result: liquidity.ResultOk, Available: 1_000_000})
	st.On("Create", mock.Anything, mock.MatchedBy(func(tx *store.Transaction) bool {
		return tx.Status == store.StatusPending && tx.NgnAmount == 9900
	})).Return(nil)

	instr, err := eng.InitializeOfframp(context.Background(), InitOfframpRequest{
		Token:         store.TokenUSDC,
		TokenAmount:   10,
		SenderAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
		BankCode:      "044",
		AccountNumber: "0123456789",
	})

	require.NoError(t, err)
	require.Equal(t, eng.cfg.PlatformAddress, instr.DepositAddress)
	require.Equal(t, instr.Transaction.Reference, instr.Memo)
	st.AssertExpectations(t)
}

func TestNotifyTxBroadcast_LosesRaceReturnsAlreadyProcessing(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)

	pending := &store.Transaction{Reference: "OFFRAMP_1", Status: store.StatusPending}
	st.On("FindByReference", mock.Anything, "OFFRAMP_1").Return(pending, nil)
	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_1", store.StatusPending, mock.Anything).
		Return(nil, nil)

	_, err := eng.NotifyTxBroadcast(context.Background(), "OFFRAMP_1", "0xabc")

	require.ErrorIs(t, err, ErrAlreadyProcessing)
}

func TestNotifyTxBroadcast_AlreadyProcessingShortCircuitsBeforeCAS(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)

	processing := &store.Transaction{Reference: "OFFRAMP_2", Status: store.StatusProcessing}
	st.On("FindByReference", mock.Anything, "OFFRAMP_2").Return(processing, nil)

	_, err := eng.NotifyTxBroadcast(context.Background(), "OFFRAMP_2", "0xabc")

	require.ErrorIs(t, err, ErrAlreadyProcessing)
	st.AssertNotCalled(t, "ConditionalUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyTxBroadcast_SpawnsWatcherOnSuccess(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)
	watcher := &mocks.MockWatcher{}
	eng.SetWatcher(watcher)

	pending := &store.Transaction{Reference: "OFFRAMP_3", Status: store.StatusPending}
	updated := &store.Transaction{Reference: "OFFRAMP_3", Status: store.StatusPending, ChainTxId: "0xdef"}
	st.On("FindByReference", mock.Anything, "OFFRAMP_3").Return(pending, nil)
	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_3", store.StatusPending, mock.Anything).
		Return(updated, nil)
	watcher.On("Watch", "OFFRAMP_3", "0xdef").Return()

	_, err := eng.NotifyTxBroadcast(context.Background(), "OFFRAMP_3", "0xdef")

	require.NoError(t, err)
	watcher.AssertCalled(t, "Watch", "OFFRAMP_3", "0xdef")
}

func TestCheckAmountTolerance_LogsOnlyOutsideTolerance(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)
	eng.cfg.AmountToleranceBPS = 10 // 0.1%

	tx := &store.Transaction{Reference: "OFFRAMP_5", TokenAmount: 100}
	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_5", store.StatusProcessing, mock.Anything).
		Return(tx, nil).Once()

	eng.checkAmountTolerance(context.Background(), tx, 99.95) // within tolerance, no side effect expected
	eng.checkAmountTolerance(context.Background(), tx, 90)    // outside tolerance: logs and flags the record
	st.AssertNumberOfCalls(t, "ConditionalUpdate", 1)
}

func TestConfirmReceipt_AlreadyProcessedIsIdempotent(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)

	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_4", store.StatusPending, mock.Anything).
		Return(nil, nil)
	st.On("FindByReference", mock.Anything, "OFFRAMP_4").
		Return(&store.Transaction{Reference: "OFFRAMP_4", Status: store.StatusConfirmed}, nil)

	outcome, tx, err := eng.ConfirmReceipt(context.Background(), ConfirmReceiptRequest{
		Reference: "OFFRAMP_4",
		ChainTxId: "0xabc",
	})

	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyProcessed, outcome)
	require.Equal(t, store.StatusConfirmed, tx.Status)
}

func TestConfirmReceipt_ConflictOnUnexpectedStatus(t *testing.T) {
	eng, st, _, _, _ := newTestEngine(t)

	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_6", store.StatusPending, mock.Anything).
		Return(nil, nil)
	st.On("FindByReference", mock.Anything, "OFFRAMP_6").
		Return(&store.Transaction{Reference: "OFFRAMP_6", Status: store.StatusFailed}, nil)

	_, _, err := eng.ConfirmReceipt(context.Background(), ConfirmReceiptRequest{
		Reference: "OFFRAMP_6",
		ChainTxId: "0xabc",
	})

	require.ErrorIs(t, err, ErrConflict)
}

func TestHandlePayoutWebhook_UnknownReferenceIsNotFatal(t *testing.T) {
	eng, st, pp, _, _ := newTestEngine(t)

	st.On("ConditionalUpdate", mock.Anything, "OFFRAMP_MISSING", store.StatusSettling, mock.Anything).Return(nil, nil)
	pp.On("VerifyWebhookSignature", mock.Anything, mock.Anything).Return(true)

	err := eng.HandlePayoutWebhook(context.Background(), []byte(`{}`), "sig", WebhookEvent{
		Type:      "transfer.completed",
		Reference: "OFFRAMP_MISSING",
	})

	require.NoError(t, err)
}
