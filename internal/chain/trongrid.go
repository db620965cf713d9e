package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

// maxPages bounds the paged explorer walk; windows are short so one page is
// the common case.
const maxPages = 5

// TronGridAdapter queries the TronGrid HTTP API: address as a path segment,
// min/max block timestamps in milliseconds, an optional API-key header.
// Confirmation is a success flag combined with a non-zero block reference.
type TronGridAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewTronGridAdapter(baseURL, apiKey string, timeout time.Duration) *TronGridAdapter {
	return &TronGridAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type tronTxResponse struct {
	Data    []tronTx `json:"data"`
	Success bool     `json:"success"`
	Meta    tronMeta `json:"meta"`
}

type tronTx struct {
	Ret            []tronRet  `json:"ret"`
	TxID           string     `json:"txID"`
	BlockNumber    int64      `json:"blockNumber"`
	BlockTimestamp int64      `json:"block_timestamp"`
	RawData        tronRawTxn `json:"raw_data"`
}

type tronRet struct {
	ContractRet string `json:"contractRet"`
}

type tronRawTxn struct {
	Contract []tronContract `json:"contract"`
}

type tronContract struct {
	Type      string `json:"type"`
	Parameter struct {
		Value struct {
			Amount    int64  `json:"amount"`
			ToAddress string `json:"to_address"`
		} `json:"value"`
	} `json:"parameter"`
}

type trc20Response struct {
	Data    []trc20Tx `json:"data"`
	Success bool      `json:"success"`
	Meta    tronMeta  `json:"meta"`
}

type trc20Tx struct {
	TransactionID  string `json:"transaction_id"`
	To             string `json:"to"`
	Value          string `json:"value"`
	BlockTimestamp int64  `json:"block_timestamp"`
	TokenInfo      struct {
		Address string `json:"address"`
	} `json:"token_info"`
}

type tronMeta struct {
	Fingerprint string `json:"fingerprint"`
}

// tronHexToBase58 converts the hex account form TronGrid uses in raw
// transaction data (a 0x41 version byte plus 20 bytes) into the base58check
// form payers are shown. Inputs already in base58 pass through unchanged.
func tronHexToBase58(addr string) string {
	b, err := hex.DecodeString(addr)
	if err != nil || len(b) != 21 {
		return addr
	}
	return base58.CheckEncode(b[1:], b[0])
}

func (a *TronGridAdapter) FetchCandidates(ctx context.Context, address string, token models.TokenInfo, windowStart, windowEnd time.Time) ([]models.TransactionCandidate, error) {
	if token.Native() {
		return a.fetchNative(ctx, address, windowStart, windowEnd)
	}
	return a.fetchTRC20(ctx, address, token, windowStart, windowEnd)
}

func (a *TronGridAdapter) fetchNative(ctx context.Context, address string, windowStart, windowEnd time.Time) ([]models.TransactionCandidate, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions", a.baseURL, address)

	var candidates []models.TransactionCandidate
	next := ""
	for page := 0; page < maxPages; page++ {
		var result tronTxResponse
		if err := a.getPage(ctx, endpoint, windowStart, windowEnd, "", next, &result); err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, transient("trongrid unsuccessful response")
		}

		for _, tx := range result.Data {
			// only plain TRX transfers count; contract calls are not native
			// payments
			if len(tx.RawData.Contract) == 0 || tx.RawData.Contract[0].Type != "TransferContract" {
				continue
			}
			value := tx.RawData.Contract[0].Parameter.Value
			confirmed := len(tx.Ret) > 0 && tx.Ret[0].ContractRet == "SUCCESS" && tx.BlockNumber != 0
			candidates = append(candidates, models.TransactionCandidate{
				Hash:        tx.TxID,
				ToAddress:   tronHexToBase58(value.ToAddress),
				RawAmount:   big.NewInt(value.Amount),
				Timestamp:   time.UnixMilli(tx.BlockTimestamp),
				Confirmed:   confirmed,
				BlockNumber: tx.BlockNumber,
			})
		}

		if result.Meta.Fingerprint == "" {
			break
		}
		next = result.Meta.Fingerprint
	}
	return candidates, nil
}

func (a *TronGridAdapter) fetchTRC20(ctx context.Context, address string, token models.TokenInfo, windowStart, windowEnd time.Time) ([]models.TransactionCandidate, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20", a.baseURL, address)

	var candidates []models.TransactionCandidate
	next := ""
	for page := 0; page < maxPages; page++ {
		var result trc20Response
		if err := a.getPage(ctx, endpoint, windowStart, windowEnd, token.ContractAddress, next, &result); err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, transient("trongrid unsuccessful response")
		}

		for _, tx := range result.Data {
			raw, ok := new(big.Int).SetString(tx.Value, 10)
			if !ok {
				telemetry.Logger.Warn("Skipping malformed trc20 transfer",
					zap.String("hash", tx.TransactionID),
					zap.String("value", tx.Value),
				)
				continue
			}
			candidates = append(candidates, models.TransactionCandidate{
				Hash:            tx.TransactionID,
				ToAddress:       tx.To,
				RawAmount:       raw,
				Timestamp:       time.UnixMilli(tx.BlockTimestamp),
				Confirmed:       tx.BlockTimestamp != 0,
				ContractAddress: tx.TokenInfo.Address,
			})
		}

		if result.Meta.Fingerprint == "" {
			break
		}
		next = result.Meta.Fingerprint
	}
	return candidates, nil
}

// getPage issues one explorer request and decodes it into out.
func (a *TronGridAdapter) getPage(ctx context.Context, endpoint string, windowStart, windowEnd time.Time, contract, next string, out any) error {
	params := url.Values{}
	params.Set("min_timestamp", strconv.FormatInt(windowStart.UnixMilli(), 10))
	params.Set("max_timestamp", strconv.FormatInt(windowEnd.Add(Grace).UnixMilli(), 10))
	params.Set("limit", "200")
	params.Set("order_by", "block_timestamp,desc")
	if contract != "" {
		params.Set("contract_address", contract)
	}
	if next != "" {
		params.Set("fingerprint", next)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build trongrid request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return transient("trongrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transient("trongrid status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transient("decode trongrid response: %w", err)
	}
	return nil
}
