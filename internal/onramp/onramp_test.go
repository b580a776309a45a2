package onramp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/naijaswap/bridge/internal/mocks"
	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "onramp-test-secret"

func signWebhook(t *testing.T, rawBody []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

func testEngine(t *testing.T) (*Engine, *mocks.MockTransactionStore, *mocks.MockSigner) {
	t.Helper()
	st := &mocks.MockTransactionStore{}
	signer := &mocks.MockSigner{}
	eng := New(st, func(ctx context.Context) func(store.Token) float64 {
		return func(store.Token) float64 { return 1500 }
	}, signer, Config{
		PlatformAddress:  "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
		USDCContractAddr: "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K",
		USDCContractName: "usdc-token",
		FlatFeeNGN:       200,
		WebhookSecret:    testWebhookSecret,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return eng, st, signer
}

func TestInitializeOnramp_RejectsAmountBelowFee(t *testing.T) {
	eng, _, _ := testEngine(t)

	_, err := eng.InitializeOnramp(context.Background(), InitOnrampRequest{
		Token:            store.TokenUSDC,
		NgnAmount:        100,
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
	})

	require.Error(t, err)
}

func TestInitializeOnramp_PersistsPendingRecord(t *testing.T) {
	eng, st, _ := testEngine(t)

	st.On("Create", mock.Anything, mock.MatchedBy(func(tx *store.Transaction) bool {
		return tx.Status == store.StatusPending && tx.Direction == store.DirectionOnramp
	})).Return(nil)

	tx, err := eng.InitializeOnramp(context.Background(), InitOnrampRequest{
		Token:            store.TokenUSDC,
		NgnAmount:        10_000,
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
	})

	require.NoError(t, err)
	require.Equal(t, store.StatusPending, tx.Status)
	st.AssertExpectations(t)
}

func TestHandlePaymentWebhook_IdempotentOnLostRace(t *testing.T) {
	eng, st, signer := testEngine(t)

	st.On("ConditionalUpdate", mock.Anything, "ONRAMP_1", store.StatusPending, mock.Anything).
		Return(nil, nil)

	rawBody := []byte(`{"eventData":{"paymentReference":"ONRAMP_1"}}`)
	err := eng.HandlePaymentWebhook(context.Background(), rawBody, signWebhook(t, rawBody), "ONRAMP_1")

	require.NoError(t, err)
	signer.AssertNotCalled(t, "SendSIP010", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentWebhook_SendsSIP010AndConfirms(t *testing.T) {
	eng, st, signer := testEngine(t)

	tx := &store.Transaction{
		Reference:        "ONRAMP_2",
		Token:            store.TokenUSDC,
		TokenAmount:      5,
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
	}
	st.On("ConditionalUpdate", mock.Anything, "ONRAMP_2", store.StatusPending, mock.Anything).
		Return(tx, nil).Once()
	signer.On("SendSIP010", mock.Anything, "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K.usdc-token", tx.RecipientAddress, tx.TokenAmount, "ONRAMP_2").
		Return("0xchaintx", nil)
	st.On("ConditionalUpdate", mock.Anything, "ONRAMP_2", store.StatusProcessing, mock.Anything).
		Return(tx, nil).Once()

	rawBody := []byte(`{"eventData":{"paymentReference":"ONRAMP_2"}}`)
	err := eng.HandlePaymentWebhook(context.Background(), rawBody, signWebhook(t, rawBody), "ONRAMP_2")

	require.NoError(t, err)
	signer.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestHandlePaymentWebhook_MarksFailedWhenSendErrors(t *testing.T) {
	eng, st, signer := testEngine(t)

	tx := &store.Transaction{
		Reference:        "ONRAMP_3",
		Token:            store.TokenSTX,
		TokenAmount:      2,
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE",
	}
	sendErr := errors.New("chain node unreachable")
	st.On("ConditionalUpdate", mock.Anything, "ONRAMP_3", store.StatusPending, mock.Anything).
		Return(tx, nil).Once()
	signer.On("SendNative", mock.Anything, tx.RecipientAddress, tx.TokenAmount, "ONRAMP_3").
		Return("", sendErr)
	st.On("ConditionalUpdate", mock.Anything, "ONRAMP_3", store.StatusProcessing, mock.Anything).
		Return(tx, nil).Once()

	rawBody := []byte(`{"eventData":{"paymentReference":"ONRAMP_3"}}`)
	err := eng.HandlePaymentWebhook(context.Background(), rawBody, signWebhook(t, rawBody), "ONRAMP_3")

	require.ErrorIs(t, err, sendErr)
	st.AssertExpectations(t)
}

func TestHandlePaymentWebhook_RejectsInvalidSignature(t *testing.T) {
	eng, st, signer := testEngine(t)

	rawBody := []byte(`{"eventData":{"paymentReference":"ONRAMP_4"}}`)
	err := eng.HandlePaymentWebhook(context.Background(), rawBody, "not-the-right-signature", "ONRAMP_4")

	require.ErrorIs(t, err, ErrValidation)
	st.AssertNotCalled(t, "ConditionalUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	signer.AssertNotCalled(t, "SendNative", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	signer.AssertNotCalled(t, "SendSIP010", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
