package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpay/payment-reconciler/internal/models"
)

var (
	tronWindowStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tronWindowEnd   = tronWindowStart.Add(30 * time.Minute)
)

const tronAddress = "TXYZa9qqqBhSms9oJoqrTd4wFeMsrPUEkk"

// base58check and hex forms of the same TRON account
const (
	tronRecipientB58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	tronRecipientHex = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestTronHexToBase58(t *testing.T) {
	assert.Equal(t, tronRecipientB58, tronHexToBase58(tronRecipientHex))

	// base58 inputs and junk pass through untouched
	assert.Equal(t, tronRecipientB58, tronHexToBase58(tronRecipientB58))
	assert.Equal(t, "41deadbeef", tronHexToBase58("41deadbeef"))
}

func TestTronGridFetchNativeTransfers(t *testing.T) {
	var gotPath, gotKey string
	var gotMin, gotMax int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("TRON-PRO-API-KEY")
		gotMin, _ = strconv.ParseInt(r.URL.Query().Get("min_timestamp"), 10, 64)
		gotMax, _ = strconv.ParseInt(r.URL.Query().Get("max_timestamp"), 10, 64)
		fmt.Fprintf(w, `{
			"success": true,
			"data": [
				{
					"txID": "aaa111",
					"blockNumber": 62000000,
					"block_timestamp": %d,
					"ret": [{"contractRet": "SUCCESS"}],
					"raw_data": {
						"contract": [{
							"type": "TransferContract",
							"parameter": {"value": {"amount": 10000000, "to_address": "%s"}}
						}]
					}
				},
				{
					"txID": "bbb222",
					"blockNumber": 0,
					"block_timestamp": %d,
					"ret": [{"contractRet": "SUCCESS"}],
					"raw_data": {
						"contract": [{
							"type": "TransferContract",
							"parameter": {"value": {"amount": 5000000, "to_address": "%s"}}
						}]
					}
				},
				{
					"txID": "ccc333",
					"blockNumber": 62000001,
					"block_timestamp": %d,
					"ret": [{"contractRet": "SUCCESS"}],
					"raw_data": {
						"contract": [{"type": "TriggerSmartContract", "parameter": {"value": {}}}]
					}
				}
			],
			"meta": {}
		}`, tronWindowStart.Add(time.Minute).UnixMilli(), tronRecipientHex,
			tronWindowStart.Add(2*time.Minute).UnixMilli(), tronRecipientHex,
			tronWindowStart.Add(3*time.Minute).UnixMilli())
	}))
	defer server.Close()

	token, err := models.ResolveToken(models.NetworkTRON, "TRX")
	require.NoError(t, err)

	adapter := NewTronGridAdapter(server.URL, "tron-key", time.Second)
	candidates, err := adapter.FetchCandidates(context.Background(), tronAddress, token, tronWindowStart, tronWindowEnd)
	require.NoError(t, err)

	assert.Equal(t, "/v1/accounts/"+tronAddress+"/transactions", gotPath)
	assert.Equal(t, "tron-key", gotKey)
	assert.Equal(t, tronWindowStart.UnixMilli(), gotMin)
	assert.Equal(t, tronWindowEnd.Add(Grace).UnixMilli(), gotMax)

	// the contract call is not a native transfer and must be skipped
	require.Len(t, candidates, 2)

	assert.Equal(t, "aaa111", candidates[0].Hash)
	assert.Equal(t, tronRecipientB58, candidates[0].ToAddress,
		"hex account form must come back in the base58 form payers are shown")
	assert.Equal(t, "10000000", candidates[0].RawAmount.String())
	assert.True(t, candidates[0].Confirmed, "SUCCESS with a block reference")
	assert.Equal(t, int64(62000000), candidates[0].BlockNumber)

	assert.False(t, candidates[1].Confirmed, "zero block reference means unconfirmed")
}

func TestTronGridFetchTRC20Transfers(t *testing.T) {
	const usdtContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	var gotPath, gotContract string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContract = r.URL.Query().Get("contract_address")
		fmt.Fprintf(w, `{
			"success": true,
			"data": [
				{
					"transaction_id": "ddd444",
					"to": "%s",
					"value": "10000000",
					"block_timestamp": %d,
					"token_info": {"address": "%s"}
				}
			],
			"meta": {}
		}`, tronAddress, tronWindowStart.Add(time.Minute).UnixMilli(), usdtContract)
	}))
	defer server.Close()

	token, err := models.ResolveToken(models.NetworkTRON, "USDT")
	require.NoError(t, err)

	adapter := NewTronGridAdapter(server.URL, "", time.Second)
	candidates, err := adapter.FetchCandidates(context.Background(), tronAddress, token, tronWindowStart, tronWindowEnd)
	require.NoError(t, err)

	assert.Equal(t, "/v1/accounts/"+tronAddress+"/transactions/trc20", gotPath)
	assert.Equal(t, usdtContract, gotContract)

	require.Len(t, candidates, 1)
	assert.Equal(t, "ddd444", candidates[0].Hash)
	assert.Equal(t, "10000000", candidates[0].RawAmount.String())
	assert.True(t, candidates[0].Confirmed)
	assert.Equal(t, usdtContract, candidates[0].ContractAddress)
}

func TestTronGridFollowsPaging(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("fingerprint") == "" {
			fmt.Fprintf(w, `{
				"success": true,
				"data": [{
					"transaction_id": "page1",
					"to": "%s",
					"value": "1",
					"block_timestamp": %d,
					"token_info": {"address": "c"}
				}],
				"meta": {"fingerprint": "cursor-2"}
			}`, tronAddress, tronWindowStart.UnixMilli())
			return
		}
		fmt.Fprintf(w, `{
			"success": true,
			"data": [{
				"transaction_id": "page2",
				"to": "%s",
				"value": "2",
				"block_timestamp": %d,
				"token_info": {"address": "c"}
			}],
			"meta": {}
		}`, tronAddress, tronWindowStart.UnixMilli())
	}))
	defer server.Close()

	token, err := models.ResolveToken(models.NetworkTRON, "USDT")
	require.NoError(t, err)

	adapter := NewTronGridAdapter(server.URL, "", time.Second)
	candidates, err := adapter.FetchCandidates(context.Background(), tronAddress, token, tronWindowStart, tronWindowEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, candidates, 2)
	assert.Equal(t, "page1", candidates[0].Hash)
	assert.Equal(t, "page2", candidates[1].Hash)
}

func TestTronGridUnsuccessfulEnvelopeIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "data": [], "meta": {}}`)
	}))
	defer server.Close()

	token, err := models.ResolveToken(models.NetworkTRON, "TRX")
	require.NoError(t, err)

	adapter := NewTronGridAdapter(server.URL, "", time.Second)
	_, err = adapter.FetchCandidates(context.Background(), tronAddress, token, tronWindowStart, tronWindowEnd)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestTronGridServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	token, err := models.ResolveToken(models.NetworkTRON, "TRX")
	require.NoError(t, err)

	adapter := NewTronGridAdapter(server.URL, "", time.Second)
	_, err = adapter.FetchCandidates(context.Background(), tronAddress, token, tronWindowStart, tronWindowEnd)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
