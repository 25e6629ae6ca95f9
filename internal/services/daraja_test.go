package services_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipaqr/lipaqr-gobackend/internal/services"
)

func newDarajaTestServer(t *testing.T, tokenCalls *int, pushHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		*tokenCalls++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", pushHandler)
	return httptest.NewServer(mux)
}

func setDarajaEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("DARAJA_BASE_URL", baseURL)
	t.Setenv("DARAJA_CONSUMER_KEY", "key")
	t.Setenv("DARAJA_CONSUMER_SECRET", "secret")
	t.Setenv("DARAJA_SHORTCODE", "174379")
	t.Setenv("DARAJA_PASSKEY", "passkey")
	t.Setenv("CALLBACK_BASE_URL", "https://pay.example.com")
	t.Setenv("CALLBACK_SECRET", "hook-secret")
}

func TestDarajaSTKPush(t *testing.T) {
	var tokenCalls int
	var captured map[string]interface{}

	srv := newDarajaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	})
	defer srv.Close()
	setDarajaEnv(t, srv.URL)

	daraja := services.NewDarajaService()
	resp, err := daraja.STKPush(context.Background(), services.STKPushRequest{
		Amount:           50,
		PhoneNumber:      "254712345678",
		AccountReference: "SHOP0101",
		Description:      "SHOP0101",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)
	assert.Equal(t, "0", resp.ResponseCode)

	assert.Equal(t, "174379", captured["BusinessShortCode"])
	assert.Equal(t, "254712345678", captured["PhoneNumber"])
	assert.Equal(t, float64(50), captured["Amount"])
	assert.Equal(t, "https://pay.example.com/api/payment/callback/hook-secret", captured["CallBackURL"])

	// Password is base64(shortcode + passkey + timestamp).
	ts, _ := captured["Timestamp"].(string)
	require.Len(t, ts, 14)
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + ts))
	assert.Equal(t, wantPassword, captured["Password"])
}

func TestDarajaTokenCaching(t *testing.T) {
	var tokenCalls int
	srv := newDarajaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"CheckoutRequestID": "ws_1",
			"ResponseCode":      "0",
		})
	})
	defer srv.Close()
	setDarajaEnv(t, srv.URL)

	daraja := services.NewDarajaService()
	for i := 0; i < 3; i++ {
		_, err := daraja.STKPush(context.Background(), services.STKPushRequest{
			Amount:      10,
			PhoneNumber: "254712345678",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}

func TestDarajaSTKPushRejection(t *testing.T) {
	var tokenCalls int
	srv := newDarajaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorCode":"500.001.1001","errorMessage":"Unable to lock subscriber"}`))
	})
	defer srv.Close()
	setDarajaEnv(t, srv.URL)

	daraja := services.NewDarajaService()
	_, err := daraja.STKPush(context.Background(), services.STKPushRequest{
		Amount:      10,
		PhoneNumber: "254712345678",
	})
	require.Error(t, err)

	var gwErr *services.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Contains(t, gwErr.Message, "Unable to lock subscriber")
}

func TestDarajaMerchantShortcodeOverride(t *testing.T) {
	var tokenCalls int
	var captured map[string]interface{}
	srv := newDarajaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"CheckoutRequestID": "ws_1", "ResponseCode": "0"})
	})
	defer srv.Close()
	setDarajaEnv(t, srv.URL)

	daraja := services.NewDarajaService()
	_, err := daraja.STKPush(context.Background(), services.STKPushRequest{
		Amount:      10,
		PhoneNumber: "254712345678",
		Shortcode:   "600999",
	})
	require.NoError(t, err)
	assert.Equal(t, "600999", captured["BusinessShortCode"])
	assert.Equal(t, "600999", captured["PartyB"])
}
