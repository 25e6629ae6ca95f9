package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// TokenSource supplies a gateway access token. Initiation depends on this
// capability rather than a module-level credential singleton.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GatewayError carries a rejection the gateway itself produced, as opposed to
// a transport failure.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("daraja error (status %d): %s", e.StatusCode, e.Message)
}

// DarajaService talks to the Safaricom Daraja API. It implements both Gateway
// and TokenSource; the OAuth token is cached until shortly before expiry.
type DarajaService struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
	callbackURL    string
	client         *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewDarajaService() *DarajaService {
	return &DarajaService{
		baseURL:        os.Getenv("DARAJA_BASE_URL"),
		consumerKey:    os.Getenv("DARAJA_CONSUMER_KEY"),
		consumerSecret: os.Getenv("DARAJA_CONSUMER_SECRET"),
		shortcode:      os.Getenv("DARAJA_SHORTCODE"),
		passkey:        os.Getenv("DARAJA_PASSKEY"),
		callbackURL:    os.Getenv("CALLBACK_BASE_URL") + "/api/payment/callback/" + os.Getenv("CALLBACK_SECRET"),
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns a cached bearer token, fetching a fresh one when the cached
// token is within 30 seconds of expiry.
func (s *DarajaService) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExp.Add(-30*time.Second)) {
		return s.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %v", err)
	}
	req.SetBasicAuth(s.consumerKey, s.consumerSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &GatewayError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %v", err)
	}

	ttl, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3600
	}
	s.token = tokenResp.AccessToken
	s.tokenExp = time.Now().Add(time.Duration(ttl) * time.Second)
	return s.token, nil
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks Daraja to prompt the payer's handset for payment.
func (s *DarajaService) STKPush(ctx context.Context, push STKPushRequest) (*STKPushResponse, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}

	shortcode := push.Shortcode
	if shortcode == "" {
		shortcode = s.shortcode
	}

	ts := time.Now().Format("20060102150405")
	payload := stkPushPayload{
		BusinessShortCode: shortcode,
		Password:          base64.StdEncoding.EncodeToString([]byte(shortcode + s.passkey + ts)),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int64(math.Round(push.Amount)),
		PartyA:            push.PhoneNumber,
		PartyB:            shortcode,
		PhoneNumber:       push.PhoneNumber,
		CallBackURL:       s.callbackURL,
		AccountReference:  push.AccountReference,
		TransactionDesc:   push.Description,
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stk push request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create stk push request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("STK push failed with status %d: %s", resp.StatusCode, string(body))
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var pushResp struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode stk push response: %v", err)
	}

	return &STKPushResponse{
		MerchantRequestID:   pushResp.MerchantRequestID,
		CheckoutRequestID:   pushResp.CheckoutRequestID,
		ResponseCode:        pushResp.ResponseCode,
		ResponseDescription: pushResp.ResponseDescription,
		CustomerMessage:     pushResp.CustomerMessage,
	}, nil
}
