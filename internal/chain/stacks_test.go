package chain

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMemo_StripsNullPaddingAndHexPrefix(t *testing.T) {
	raw := append([]byte("SSWAP_OFFRAMP_ABC123"), make([]byte, 34-len("SSWAP_OFFRAMP_ABC123"))...)
	hexMemo := "0x" + hex.EncodeToString(raw)

	require.Equal(t, "SSWAP_OFFRAMP_ABC123", DecodeMemo(hexMemo))
}

func TestDecodeMemo_InvalidHexReturnsEmpty(t *testing.T) {
	require.Equal(t, "", DecodeMemo("not-hex"))
}

func TestSumTransferAmountTo_OnlySumsMatchingRecipientAndAsset(t *testing.T) {
	call := &ContractCall{
		Events: []FungibleTokenEvent{
			{AssetID: "SP123.usdc-token::usdc", Amount: 5_000_000, Recipient: "SP_PLATFORM"},
			{AssetID: "SP123.usdc-token::usdc", Amount: 1_000_000, Recipient: "SP_SOMEONE_ELSE"},
			{AssetID: "SP999.other-token::other", Amount: 9_000_000, Recipient: "SP_PLATFORM"},
		},
	}

	total := SumTransferAmountTo(call, "SP_PLATFORM", "SP123.usdc-token")

	require.Equal(t, 5.0, total)
}

func TestSumTransferAmountTo_NilCallReturnsZero(t *testing.T) {
	require.Equal(t, 0.0, SumTransferAmountTo(nil, "SP_PLATFORM", "SP123.usdc-token"))
}

func TestTxStatus_IsAbortAndIsDropped(t *testing.T) {
	require.True(t, StatusAbortByResponse.IsAbort())
	require.True(t, StatusDroppedTooExpensive.IsDropped())
	require.False(t, StatusSuccess.IsAbort())
	require.False(t, StatusSuccess.IsDropped())
}

func TestGetTxById_NotFoundReturnsTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL})

	_, err := c.GetTxById(context.Background(), "0xmissing")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetTxById_DecodesSuccessfulNativeTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"tx_id": "0xabc",
			"tx_status": "success",
			"sender_address": "SP1SENDER",
			"tx_type": "token_transfer",
			"token_transfer": {"recipient_address": "SP_PLATFORM", "amount": "2000000", "memo_hex": "0x"}
		}`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL})

	tx, err := c.GetTxById(context.Background(), "0xabc")

	require.NoError(t, err)
	require.Equal(t, StatusSuccess, tx.Status)
	require.NotNil(t, tx.NativeTransfer)
	require.Equal(t, uint64(2000000), tx.NativeTransfer.Amount)
}

func TestGetAddressTransactions_BuildsQueryAndDecodesResults(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL})

	txs, err := c.GetAddressTransactions(context.Background(), "SP_PLATFORM", 50, 0)

	require.NoError(t, err)
	require.Empty(t, txs)
	require.True(t, strings.Contains(gotPath, "limit=50"))
	require.True(t, strings.Contains(gotPath, "offset=0"))
}
