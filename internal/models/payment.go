package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusExpired   PaymentStatus = "expired"
	StatusUnderpaid PaymentStatus = "underpaid"
	StatusOverpaid  PaymentStatus = "overpaid"
	StatusError     PaymentStatus = "error"
)

// Terminal reports whether no further automatic transition happens from s.
func (s PaymentStatus) Terminal() bool {
	return s != StatusPending
}

type Network string

const (
	NetworkBSC  Network = "BSC"
	NetworkTRON Network = "TRON"
)

// PaymentRecord is the unit of work driven through the reconciliation loop.
// Once Status is terminal the record is never mutated again; TransactionHash,
// ReceivedAmount and ConfirmedBlock are set together or not at all.
type PaymentRecord struct {
	UniqueID         string          `json:"unique_id"`
	Status           PaymentStatus   `json:"status"`
	Network          Network         `json:"network"`
	Currency         string          `json:"currency"`
	RecipientAddress string          `json:"recipient_address"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
	LastCheckedAt    *time.Time      `json:"last_checked_at,omitempty"`

	TransactionHash *string          `json:"transaction_hash,omitempty"`
	ReceivedAmount  *decimal.Decimal `json:"received_amount,omitempty"`
	ConfirmedBlock  *int64           `json:"confirmed_block,omitempty"`
}

// TransactionCandidate is a chain transfer as reported by an explorer API,
// normalized across networks. Amounts stay in raw integer units; candidates
// are ephemeral and never persisted.
type TransactionCandidate struct {
	Hash            string
	ToAddress       string
	RawAmount       *big.Int
	Timestamp       time.Time
	Confirmed       bool
	BlockNumber     int64
	ContractAddress string // empty for native-currency transfers
}

// PaymentEvent is published to Kafka whenever a payment reaches a terminal
// status.
type PaymentEvent struct {
	PaymentID      string        `json:"payment_id"`
	Status         PaymentStatus `json:"status"`
	Network        Network       `json:"network"`
	Currency       string        `json:"currency"`
	ExpectedAmount string        `json:"expected_amount"`
	ReceivedAmount string        `json:"received_amount,omitempty"`
	TxHash         string        `json:"tx_hash,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
