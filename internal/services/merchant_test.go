package services_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
	"github.com/lipaqr/lipaqr-gobackend/internal/services"
)

func TestMerchantRegisterAndLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	merchants := &fakeMerchantStore{merchants: make(map[string]*models.Merchant)}
	svc := services.NewMerchantService(merchants)

	id, err := svc.Register(context.Background(), services.RegisterRequest{
		Name:        "Mama Njeri Shop",
		Email:       "njeri@example.com",
		PhoneNumber: "0712345678",
		AccountType: models.AccountTypePaybill,
		Shortcode:   "600999",
		Password:    "hunter2hunter2",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored := merchants.merchants[id]
	require.NotNil(t, stored)
	assert.Equal(t, "254712345678", stored.PhoneNumber)
	assert.NotEqual(t, "hunter2hunter2", stored.HPassword)

	t.Run("login issues token with merchant id claim", func(t *testing.T) {
		token, merchant, err := svc.Login(context.Background(), "njeri@example.com", "hunter2hunter2")
		require.NoError(t, err)
		assert.Equal(t, id, merchant.ID.Hex())

		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		require.NoError(t, err)
		claims, ok := parsed.Claims.(jwt.MapClaims)
		require.True(t, ok)
		assert.Equal(t, id, claims["merchant_id"])
	})

	t.Run("login rejects wrong password", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), "njeri@example.com", "wrong")
		assert.Error(t, err)
	})

	t.Run("login rejects unknown email", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), "nobody@example.com", "hunter2hunter2")
		assert.Error(t, err)
	})
}

func TestMerchantRegisterValidation(t *testing.T) {
	merchants := &fakeMerchantStore{merchants: make(map[string]*models.Merchant)}
	svc := services.NewMerchantService(merchants)

	tests := []struct {
		name string
		req  services.RegisterRequest
	}{
		{name: "missing name", req: services.RegisterRequest{Email: "a@b.c", Password: "longenough", PhoneNumber: "0712345678"}},
		{name: "short password", req: services.RegisterRequest{Name: "Shop", Email: "a@b.c", Password: "short", PhoneNumber: "0712345678"}},
		{name: "bad account type", req: services.RegisterRequest{Name: "Shop", Email: "a@b.c", Password: "longenough", PhoneNumber: "0712345678", AccountType: "wallet"}},
		{name: "bad phone", req: services.RegisterRequest{Name: "Shop", Email: "a@b.c", Password: "longenough", PhoneNumber: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, services.ErrInvalidInput)
		})
	}
}
