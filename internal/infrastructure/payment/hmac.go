package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// ProviderHMAC is the name of the generic signed-JSON gateway
const ProviderHMAC = "hmac"

// HMACProvider is a payment gateway whose webhooks are JSON documents
// signed with HMAC-SHA256 over "<timestamp>.<payload>". The signature
// header has the form "t=<unix seconds>,v1=<hex digest>".
//
// Intents and refunds are created locally; the gateway only reports
// outcomes through webhooks.
type HMACProvider struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewHMACProvider creates the gateway. A zero tolerance disables the
// timestamp check.
func NewHMACProvider(secret string, tolerance time.Duration) *HMACProvider {
	return &HMACProvider{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// hmacWebhook is the gateway's webhook body
type hmacWebhook struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Name implements billing.PaymentProvider
func (p *HMACProvider) Name() string {
	return ProviderHMAC
}

// CreatePaymentIntent issues a local intent id
func (p *HMACProvider) CreatePaymentIntent(_ context.Context, req billing.IntentRequest) (*billing.IntentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("hmac: amount must be positive")
	}
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &billing.IntentResult{
		PaymentIntentID: id,
		ClientSecret:    id + "_secret_" + p.digest(id)[:16],
		RedirectURL:     req.ReturnURL,
		Metadata:        req.Metadata,
	}, nil
}

// Sign returns the signature header for payload at ts
func (p *HMACProvider) Sign(payload []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + p.digest(unix+"."+string(payload))
}

func (p *HMACProvider) digest(message string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the signature and, when a tolerance is set, the age
// of the timestamp
func (p *HMACProvider) VerifyWebhook(signature string, payload []byte) bool {
	if len(p.secret) == 0 {
		return false
	}
	ts, digests, ok := parseSignatureHeader(signature)
	if !ok {
		return false
	}
	if p.tolerance > 0 {
		age := p.now().Sub(time.Unix(ts, 0))
		if age > p.tolerance || age < -p.tolerance {
			return false
		}
	}
	expected := []byte(p.digest(strconv.FormatInt(ts, 10) + "." + string(payload)))
	for _, d := range digests {
		if hmac.Equal(expected, []byte(d)) {
			return true
		}
	}
	return false
}

func parseSignatureHeader(header string) (int64, []string, bool) {
	var (
		ts      int64
		digests []string
		haveTS  bool
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, false
			}
			ts, haveTS = n, true
		case "v1":
			digests = append(digests, value)
		}
	}
	return ts, digests, haveTS && len(digests) > 0
}

// ParseWebhook normalizes a verified payload
func (p *HMACProvider) ParseWebhook(payload []byte) (*billing.WebhookResult, error) {
	var hook hmacWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("hmac: failed to parse webhook: %w", err)
	}
	if hook.PaymentIntentID == "" {
		return nil, fmt.Errorf("hmac: webhook has no payment_intent_id")
	}

	result := &billing.WebhookResult{
		EventID:         hook.ID,
		TransactionID:   hook.TransactionID,
		PaymentIntentID: hook.PaymentIntentID,
		Status:          mapHMACStatus(hook.Status),
		Amount:          hook.Amount,
		FailureReason:   hook.FailureReason,
		Metadata:        hook.Metadata,
	}
	if hook.Currency != "" {
		currency, err := billing.ParseCurrency(hook.Currency)
		if err != nil {
			return nil, fmt.Errorf("hmac: %w", err)
		}
		result.Currency = currency
	}
	return result, nil
}

func mapHMACStatus(status string) billing.WebhookStatus {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "paid":
		return billing.WebhookStatusCompleted
	case "failed", "declined":
		return billing.WebhookStatusFailed
	default:
		return billing.WebhookStatusPending
	}
}

// Refund issues a local refund id. A nil amount refunds in full.
func (p *HMACProvider) Refund(_ context.Context, transactionID string, amount *decimal.Decimal) (*billing.RefundResult, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("hmac: transaction id is required")
	}
	result := &billing.RefundResult{
		RefundID: "re_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:   "succeeded",
	}
	if amount != nil {
		result.Amount = *amount
	}
	return result, nil
}

var _ billing.PaymentProvider = (*HMACProvider)(nil)
