package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/lipaqr/lipaqr-gobackend/internal/services"
)

type MerchantHandler struct {
	service *services.MerchantService
}

func NewMerchantHandler(service *services.MerchantService) *MerchantHandler {
	return &MerchantHandler{service: service}
}

// Register handles POST /api/merchant
func (h *MerchantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.service.Register(r.Context(), req)
	if err != nil {
		log.Printf("Failed to register merchant: %v", err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// Login handles POST /api/login
func (h *MerchantHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, merchant, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":    token,
		"merchant": merchant,
	})
}

// GetProfile handles GET /api/merchant
func (h *MerchantHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	merchantID, err := authMerchantID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	merchant, err := h.service.GetMerchant(r.Context(), merchantID)
	if err != nil {
		log.Printf("Failed to fetch merchant %s: %v", merchantID, err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(merchant)
}
