package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
	"github.com/lipaqr/lipaqr-gobackend/internal/services"
)

type PaymentHandler struct {
	service *services.PaymentService
}

func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMerchantNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrGatewayRejected), errors.Is(err, services.ErrGatewayUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// InitiatePayment handles POST /api/payment
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	merchantID, err := authMerchantID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req struct {
		PhoneNumber string  `json:"phone_number"`
		Amount      float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), services.InitiateRequest{
		PayerPhone: req.PhoneNumber,
		Amount:     req.Amount,
		MerchantID: merchantID,
	})
	if err != nil {
		log.Printf("Failed to initiate payment for merchant %s: %v", merchantID, err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// InitiateGuestPayment handles POST /api/payment/guest
func (h *PaymentHandler) InitiateGuestPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string                    `json:"phone_number"`
		Amount      float64                   `json:"amount"`
		Guest       *models.GuestMerchantInfo `json:"guest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), services.InitiateRequest{
		PayerPhone: req.PhoneNumber,
		Amount:     req.Amount,
		Guest:      req.Guest,
	})
	if err != nil {
		log.Printf("Failed to initiate guest payment: %v", err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// callbackAck is what Daraja expects back. Anything else makes it retry the
// webhook, so the callback route must return this even on internal failure.
func callbackAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// Callback handles POST /api/payment/callback/{secret}
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if secret := os.Getenv("CALLBACK_SECRET"); secret != "" && mux.Vars(r)["secret"] != secret {
		log.Printf("Callback with bad secret from %s", r.RemoteAddr)
		callbackAck(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read callback body: %v", err)
		callbackAck(w)
		return
	}

	var env services.CallbackEnvelope
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &env); err != nil {
		log.Printf("Failed to decode callback payload: %v", err)
		callbackAck(w)
		return
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		raw = map[string]interface{}{"body": string(body)}
	}

	if err := h.service.HandleCallback(r.Context(), env, raw); err != nil {
		// Contained: the gateway still gets an acknowledgement.
		log.Printf("Callback processing failed: %v", err)
	}
	callbackAck(w)
}

// GetStatus handles GET /api/payment/status/{checkoutRequestID}
func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := authMerchantID(r); err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	checkoutRequestID := mux.Vars(r)["checkoutRequestID"]
	if checkoutRequestID == "" {
		writeError(w, "checkout request id is required", http.StatusBadRequest)
		return
	}

	txn, err := h.service.GetByCheckoutRequestID(r.Context(), checkoutRequestID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to fetch transaction %s: %v", checkoutRequestID, err)
		writeError(w, "failed to fetch transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// ListTransactions handles GET /api/payments
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	merchantID, err := authMerchantID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	txns, err := h.service.ListTransactions(r.Context(), merchantID,
		query.Get("status"), query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		log.Printf("Failed to fetch transactions for merchant %s: %v", merchantID, err)
		writeError(w, err.Error(), statusForError(err))
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txns)
}
