package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/store"
	"rationshop/backend/internal/xid"
)

// ShopStore is the slice of the repository the auth manager needs.
type ShopStore interface {
	CreateShop(ctx context.Context, shop domain.Shop) error
	GetShopByEmail(ctx context.Context, email string) (*domain.Shop, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	shops    ShopStore
}

type shopClaims struct {
	jwtlib.RegisteredClaims
	ShopName string `json:"shop_name"`
	Email    string `json:"email"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, shops ShopStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		shops:    shops,
	}
}

func (a *AuthManager) Register(ctx context.Context, req domain.ShopRegisterRequest) (domain.LoginResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Location == "" || email == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: name, location and email required", store.ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return domain.LoginResponse{}, fmt.Errorf("%w: invalid email", store.ErrValidation)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("hash password: %w", err)
	}

	shop := domain.Shop{
		ID:            xid.New("shop"),
		Name:          req.Name,
		Location:      req.Location,
		Email:         email,
		ContactNumber: strings.TrimSpace(req.ContactNumber),
		PasswordHash:  string(hash),
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.shops.CreateShop(ctx, shop); err != nil {
		return domain.LoginResponse{}, err
	}

	return a.issue(shop)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	shop, err := a.shops.GetShopByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errors.New("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(shop.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	return a.issue(*shop)
}

func (a *AuthManager) issue(shop domain.Shop) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := shopClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   shop.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "rationshop",
		},
		ShopName: shop.Name,
		Email:    shop.Email,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		Shop:        shop,
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &shopClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{ShopID: sub, Name: claims.ShopName, Email: claims.Email}, nil
}
