package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ventaslink/backend/internal/domain"
)

var errInvalidCredentials = errors.New("invalid email or password")

// VendorDirectory is the slice of the repository the auth manager needs.
type VendorDirectory interface {
	GetVendorByEmail(ctx context.Context, email string) (*domain.Vendor, error)
	UpdateVendorPassword(ctx context.Context, id string, passwordHash string) error
}

// AuthManager issues and validates the bearer tokens carried by every
// authenticated request. Credentials live on the vendor documents.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	vendors  VendorDirectory
}

type vendorClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, vendors VendorDirectory) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		vendors:  vendors,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	vendor, err := a.vendors.GetVendorByEmail(ctx, email)
	if err != nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !vendor.Active || vendor.PasswordHash == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(vendor.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := vendorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   vendor.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: vendor.Role,
		Name: vendor.Name,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        vendor.Role,
		VendorID:    vendor.ID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(token string) (domain.Actor, error) {
	claims := &vendorClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, errors.New("invalid token claims")
	}
	return domain.Actor{
		VendorID: claims.Subject,
		Name:     claims.Name,
		Role:     claims.Role,
	}, nil
}

// SetPassword hashes and stores a new password for the vendor.
func (a *AuthManager) SetPassword(ctx context.Context, vendorID string, password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.vendors.UpdateVendorPassword(ctx, vendorID, string(hash))
}

// HashPassword is used when creating vendor accounts with an initial
// password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
