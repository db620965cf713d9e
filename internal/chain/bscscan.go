package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
)

// BscScanAdapter queries an etherscan-family HTTP API: address, optional
// token-contract filter, start/end unix timestamps and an API key as query
// parameters. Confirmation is a numeric confirmation count compared against a
// configured threshold.
type BscScanAdapter struct {
	baseURL          string
	apiKey           string
	minConfirmations int64
	client           *http.Client
}

func NewBscScanAdapter(baseURL, apiKey string, minConfirmations int64, timeout time.Duration) *BscScanAdapter {
	return &BscScanAdapter{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		minConfirmations: minConfirmations,
		client:           &http.Client{Timeout: timeout},
	}
}

type bscScanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type bscScanTx struct {
	Hash            string `json:"hash"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	BlockNumber     string `json:"blockNumber"`
	Confirmations   string `json:"confirmations"`
	ContractAddress string `json:"contractAddress"`
	IsError         string `json:"isError"`
}

func (a *BscScanAdapter) FetchCandidates(ctx context.Context, address string, token models.TokenInfo, windowStart, windowEnd time.Time) ([]models.TransactionCandidate, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("address", address)
	params.Set("starttime", strconv.FormatInt(windowStart.Unix(), 10))
	params.Set("endtime", strconv.FormatInt(windowEnd.Add(Grace).Unix(), 10))
	params.Set("sort", "desc")
	if a.apiKey != "" {
		params.Set("apikey", a.apiKey)
	}
	if token.Native() {
		params.Set("action", "txlist")
	} else {
		params.Set("action", "tokentx")
		params.Set("contractaddress", token.ContractAddress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build bscscan request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transient("bscscan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transient("bscscan status %d", resp.StatusCode)
	}

	var envelope bscScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, transient("decode bscscan response: %w", err)
	}

	// status "0" covers both "no transactions found" (an empty result, not a
	// failure) and real errors such as rate limiting.
	if envelope.Status != "1" {
		if strings.Contains(strings.ToLower(envelope.Message), "no transactions") {
			return nil, nil
		}
		return nil, transient("bscscan error: %s", envelope.Message)
	}

	var txs []bscScanTx
	if err := json.Unmarshal(envelope.Result, &txs); err != nil {
		return nil, transient("decode bscscan result: %w", err)
	}

	candidates := make([]models.TransactionCandidate, 0, len(txs))
	for _, tx := range txs {
		if tx.IsError == "1" {
			continue
		}
		candidate, err := a.parseTx(tx)
		if err != nil {
			telemetry.Logger.Warn("Skipping malformed bscscan transaction",
				zap.String("hash", tx.Hash),
				zap.Error(err),
			)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (a *BscScanAdapter) parseTx(tx bscScanTx) (models.TransactionCandidate, error) {
	raw, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return models.TransactionCandidate{}, fmt.Errorf("bad value %q", tx.Value)
	}
	ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
	if err != nil {
		return models.TransactionCandidate{}, fmt.Errorf("bad timestamp %q", tx.TimeStamp)
	}
	block, err := strconv.ParseInt(tx.BlockNumber, 10, 64)
	if err != nil {
		return models.TransactionCandidate{}, fmt.Errorf("bad block number %q", tx.BlockNumber)
	}
	confirmations, err := strconv.ParseInt(tx.Confirmations, 10, 64)
	if err != nil {
		return models.TransactionCandidate{}, fmt.Errorf("bad confirmations %q", tx.Confirmations)
	}

	return models.TransactionCandidate{
		Hash:            tx.Hash,
		ToAddress:       tx.To,
		RawAmount:       raw,
		Timestamp:       time.Unix(ts, 0),
		Confirmed:       confirmations >= a.minConfirmations,
		BlockNumber:     block,
		ContractAddress: tx.ContractAddress,
	}, nil
}
