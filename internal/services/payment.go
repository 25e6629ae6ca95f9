package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
	"github.com/lipaqr/lipaqr-gobackend/internal/store"
)

// Error taxonomy. Handlers map these to HTTP status codes with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrMerchantNotFound   = errors.New("merchant not found")
	ErrNotFound           = errors.New("transaction not found")
	ErrGatewayRejected    = errors.New("gateway rejected request")
	ErrGatewayUnreachable = errors.New("gateway unreachable")
)

// Gateway is the outbound payment-gateway capability. The engine depends on
// this interface so the Daraja client can be swapped for a fake in tests.
type Gateway interface {
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
}

type STKPushRequest struct {
	Amount           float64
	PhoneNumber      string
	AccountReference string
	Description      string
	// Shortcode overrides the gateway's configured shortcode (merchant-owned
	// paybill/till). Empty means use the platform shortcode.
	Shortcode string
}

type STKPushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// PaymentService owns payment initiation, callback reconciliation and the
// status read path.
type PaymentService struct {
	transactions store.TransactionStore
	merchants    store.MerchantStore
	gateway      Gateway
}

func NewPaymentService(transactions store.TransactionStore, merchants store.MerchantStore, gateway Gateway) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		merchants:    merchants,
		gateway:      gateway,
	}
}

type InitiateRequest struct {
	PayerPhone string
	Amount     float64
	MerchantID string
	Guest      *models.GuestMerchantInfo
}

type InitiateResult struct {
	TransactionID     string `json:"transaction_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

// NormalizePhone rewrites a payer number to 254-prefixed digits. A leading 0
// becomes the country code; bare 9-digit numbers starting with 7 or 1 get the
// code prefixed. Anything shorter than 12 digits after rewriting is rejected.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	for _, c := range cleaned {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: phone number must contain digits only", ErrInvalidInput)
		}
	}

	switch {
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9 && (cleaned[0] == '7' || cleaned[0] == '1'):
		cleaned = "254" + cleaned
	}

	if len(cleaned) < 12 {
		return "", fmt.Errorf("%w: phone number too short", ErrInvalidInput)
	}
	return cleaned, nil
}

// InitiatePayment validates the request, asks the gateway to push an STK
// prompt to the payer, and records a pending transaction only after the
// gateway accepts. A single best-effort attempt: callers may retry the whole
// operation because nothing is persisted on failure.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	phone, err := NormalizePhone(req.PayerPhone)
	if err != nil {
		return nil, err
	}

	var payeeName, shortcode string
	switch {
	case req.MerchantID != "":
		merchant, err := s.merchants.GetByID(ctx, req.MerchantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrMerchantNotFound
			}
			return nil, fmt.Errorf("failed to fetch merchant: %v", err)
		}
		payeeName = merchant.Name
		shortcode = merchant.Shortcode
	case req.Guest != nil && req.Guest.Name != "":
		payeeName = req.Guest.Name
	default:
		return nil, fmt.Errorf("%w: merchant_id or guest merchant info required", ErrInvalidInput)
	}

	ts := time.Now().Format("20060102150405")
	push := STKPushRequest{
		Amount:      req.Amount,
		PhoneNumber: phone,
		// Daraja caps these at 12 and 13 characters respectively.
		AccountReference: gatewayReference(payeeName, ts, 12),
		Description:      gatewayReference(payeeName, ts, 13),
		Shortcode:        shortcode,
	}

	resp, err := s.gateway.STKPush(ctx, push)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			log.Printf("STK push rejected for %s: %s", phone, gwErr.Message)
			return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, gwErr.Message)
		}
		log.Printf("STK push failed for %s: %v", phone, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	if resp.ResponseCode != "0" {
		log.Printf("STK push declined for %s: code=%s desc=%s", phone, resp.ResponseCode, resp.ResponseDescription)
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, resp.ResponseDescription)
	}

	txn := &models.Transaction{
		MerchantID:        req.MerchantID,
		GuestMerchantInfo: req.Guest,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Amount:            req.Amount,
		PhoneNumber:       phone,
		AccountReference:  push.AccountReference,
		Status:            models.StatusPending,
	}
	id, err := s.transactions.Create(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("failed to save transaction: %v", err)
	}

	log.Printf("Payment initiated: id=%s checkout_request_id=%s amount=%.2f", id, resp.CheckoutRequestID, req.Amount)
	return &InitiateResult{
		TransactionID:     id,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// gatewayReference builds a short, human-traceable reference from the payee
// name plus the trailing digits of the request timestamp, capped at max.
func gatewayReference(name, ts string, max int) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(name) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		cleaned = "LIPAQR"
	}

	suffix := ts
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	if len(cleaned) > max-len(suffix) {
		cleaned = cleaned[:max-len(suffix)]
	}
	return cleaned + suffix
}

// CallbackEnvelope mirrors the Daraja STK result payload.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// Daraja result code for a payer cancelling the STK prompt.
const resultCodeCancelled = 1032

func statusForResultCode(code int) string {
	switch code {
	case 0:
		return models.StatusSuccess
	case resultCodeCancelled:
		return models.StatusCancelled
	default:
		return models.StatusFailed
	}
}

// HandleCallback reconciles an inbound gateway callback against its pending
// transaction. Any error returned here is for operator logs only; the HTTP
// layer acknowledges the gateway regardless.
func (s *PaymentService) HandleCallback(ctx context.Context, env CallbackEnvelope, raw map[string]interface{}) error {
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		log.Printf("Discarding malformed callback: missing CheckoutRequestID")
		return nil
	}

	upd := store.TransactionUpdate{
		Status:      statusForResultCode(cb.ResultCode),
		ResultCode:  cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		RawCallback: raw,
	}
	if cb.CallbackMetadata != nil {
		meta := flattenMetadata(cb.CallbackMetadata.Item)
		upd.ReceiptNumber = stringItem(meta, "MpesaReceiptNumber")
		upd.Amount = floatItem(meta, "Amount")
		upd.PhoneNumber = stringItem(meta, "PhoneNumber")
	}

	outcome, err := s.transactions.Finalize(ctx, cb.CheckoutRequestID, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			orphan := &models.OrphanCallback{
				CheckoutRequestID: cb.CheckoutRequestID,
				Payload:           raw,
			}
			if oErr := s.transactions.InsertOrphan(ctx, orphan); oErr != nil {
				log.Printf("Failed to record orphan callback %s: %v", cb.CheckoutRequestID, oErr)
				return oErr
			}
			log.Printf("Orphan callback recorded: checkout_request_id=%s", cb.CheckoutRequestID)
			return nil
		}
		log.Printf("Reconciliation failed for %s: %v", cb.CheckoutRequestID, err)
		return err
	}

	switch outcome {
	case store.FinalizeApplied:
		log.Printf("Transaction %s settled: status=%s receipt=%s", cb.CheckoutRequestID, upd.Status, upd.ReceiptNumber)
	case store.FinalizeAlreadyApplied:
		log.Printf("Duplicate callback for %s ignored: status already %s", cb.CheckoutRequestID, upd.Status)
	case store.FinalizeConflict:
		log.Printf("Conflicting callback for %s dropped: incoming status %s differs from stored terminal status", cb.CheckoutRequestID, upd.Status)
	}
	return nil
}

func flattenMetadata(items []MetadataItem) map[string]interface{} {
	meta := make(map[string]interface{}, len(items))
	for _, item := range items {
		meta[item.Name] = item.Value
	}
	return meta
}

func stringItem(meta map[string]interface{}, name string) string {
	switch v := meta[name].(type) {
	case string:
		return v
	case float64:
		// Daraja sends PhoneNumber as a JSON number.
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func floatItem(meta map[string]interface{}, name string) float64 {
	if v, ok := meta[name].(float64); ok {
		return v
	}
	return 0
}

// GetByCheckoutRequestID is the status read path used by polling clients.
func (s *PaymentService) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	txn, err := s.transactions.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns a merchant's transactions, newest first, with
// optional status and RFC3339 date-range filters.
func (s *PaymentService) ListTransactions(ctx context.Context, merchantID string, statusFilter, startDate, endDate string) ([]models.Transaction, error) {
	filter := store.ListFilter{}

	if statusFilter != "" {
		valid := map[string]bool{
			models.StatusPending:   true,
			models.StatusSuccess:   true,
			models.StatusFailed:    true,
			models.StatusCancelled: true,
			models.StatusError:     true,
		}
		if !valid[statusFilter] {
			return nil, fmt.Errorf("%w: invalid status filter %q", ErrInvalidInput, statusFilter)
		}
		filter.Status = statusFilter
	}

	if startDate != "" && endDate != "" {
		start, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid start_date format", ErrInvalidInput)
		}
		end, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid end_date format", ErrInvalidInput)
		}
		filter.Start = &start
		filter.End = &end
	}

	return s.transactions.ListByMerchant(ctx, merchantID, filter)
}
