package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
	"github.com/lipaqr/lipaqr-gobackend/internal/store"
)

type MerchantService struct {
	merchants store.MerchantStore
}

func NewMerchantService(merchants store.MerchantStore) *MerchantService {
	return &MerchantService{merchants: merchants}
}

type RegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Shortcode   string `json:"shortcode"`
	AccountType string `json:"account_type"`
	Password    string `json:"password"`
}

func (s *MerchantService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return "", fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if req.AccountType == "" {
		req.AccountType = models.AccountTypeTill
	}
	if req.AccountType != models.AccountTypeTill && req.AccountType != models.AccountTypePaybill {
		return "", fmt.Errorf("%w: account_type must be till or paybill", ErrInvalidInput)
	}

	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %v", err)
	}

	merchant := &models.Merchant{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: phone,
		Shortcode:   req.Shortcode,
		AccountType: req.AccountType,
		HPassword:   string(hashed),
	}
	return s.merchants.Create(ctx, merchant)
}

// Login verifies credentials and issues a signed token carrying the merchant id.
func (s *MerchantService) Login(ctx context.Context, email, password string) (string, *models.Merchant, error) {
	merchant, err := s.merchants.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, errors.New("invalid credentials")
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(merchant.HPassword), []byte(password)); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"merchant_id": merchant.ID.Hex(),
		"email":       merchant.Email,
		"exp":         time.Now().Add(72 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %v", err)
	}
	return signed, merchant, nil
}

func (s *MerchantService) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	merchant, err := s.merchants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return merchant, nil
}
