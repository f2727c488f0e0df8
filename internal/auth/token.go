package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/roomie/internal/model"
)

// DefaultTokenTTL は認証トークンの既定の有効期間。
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken は署名不正・アルゴリズム不一致・期限切れのトークンを表す。
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims は認証トークンに埋め込むクレーム。
// 認可判定はこのクレームのみで行い、DB参照は不要。
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Credential は発行済みの認証トークンとその有効期限。
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer はHS256で署名された認証トークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。ttlが0以下の場合は24時間。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL はトークンの有効期間を返す。Cookieのmax-ageに使用する。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザーの認証トークンを発行する。
func (i *TokenIssuer) Issue(user *model.User) (*Credential, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Credential{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate はトークンを検証し、呼び出し元の識別情報を返す。
func (i *TokenIssuer) Authenticate(tokenString string) (*model.Caller, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	return &model.Caller{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}
