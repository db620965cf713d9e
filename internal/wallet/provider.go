package wallet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/chainpay/payment-reconciler/internal/models"
)

const provideTimeout = 5 * time.Second

type provideRequest struct {
	Network models.Network `json:"network"`
}

type provideResponse struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

// Provider obtains deposit addresses from the wallet service over NATS
// request-reply. It is a collaborator, not part of reconciliation
// correctness: it only feeds the payment record at creation time.
type Provider struct {
	nc *nats.Conn
}

func NewProvider(nc *nats.Conn) *Provider {
	return &Provider{nc: nc}
}

// ProvideAddress asks the wallet service for a deposit address on the given
// network.
func (p *Provider) ProvideAddress(network models.Network) (string, error) {
	req, _ := json.Marshal(provideRequest{Network: network})

	msg, err := p.nc.Request("wallet.provide", req, provideTimeout)
	if err != nil {
		return "", fmt.Errorf("wallet provider request: %w", err)
	}

	var resp provideResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", fmt.Errorf("decode wallet provider response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("wallet provider: %s", resp.Error)
	}
	if resp.Address == "" {
		return "", fmt.Errorf("wallet provider returned empty address for %s", network)
	}
	return resp.Address, nil
}

// QRCodePNG renders the address and amount a payer should send as a QR
// image.
func QRCodePNG(address, amount string, size int) ([]byte, error) {
	content := address
	if amount != "" {
		content = fmt.Sprintf("%s?amount=%s", address, amount)
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
