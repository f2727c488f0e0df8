// Package auth はパスワード認証、Google OAuth認証、認証トークンの発行と検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomie/internal/metrics"
	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
	"github.com/hitoshi/roomie/internal/statestore"
)

const (
	// DefaultHandoffTTL はハンドオフコードの既定の有効期間。
	DefaultHandoffTTL = 5 * time.Minute
	// DefaultOAuthStateTTL はOAuth stateの既定の有効期間。
	DefaultOAuthStateTTL = 10 * time.Minute

	oauthStateKeyPrefix = "oauth_state:"
	handoffKeyPrefix    = "handoff:"
	handoffVerified     = "verified"

	methodPassword = "password"
	methodGoogle   = "google"
)

// ErrEmailNotVerified はGoogleアカウントのメールアドレスが未確認であることを表す。
var ErrEmailNotVerified = errors.New("auth: google email is not verified")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	HandoffTTL    time.Duration
	OAuthStateTTL time.Duration
}

// SignupInput はパスワード登録の入力。
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninInput はパスワードログインの入力。
type SigninInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthResult はOAuthコールバック処理の結果。
type OAuthResult struct {
	User        *model.User
	Credential  *Credential
	HandoffCode string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	oauth   OAuthProvider
	tokens  *TokenIssuer
	hasher  *PasswordHasher
	states  statestore.Store
	metrics metrics.MetricsCollector
	config  ServiceConfig
	now     func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	oauth OAuthProvider,
	tokens *TokenIssuer,
	hasher *PasswordHasher,
	states statestore.Store,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.HandoffTTL <= 0 {
		config.HandoffTTL = DefaultHandoffTTL
	}
	if config.OAuthStateTTL <= 0 {
		config.OAuthStateTTL = DefaultOAuthStateTTL
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		users:   users,
		oauth:   oauth,
		tokens:  tokens,
		hasher:  hasher,
		states:  states,
		metrics: collector,
		config:  config,
		now:     time.Now,
	}
}

// Tokens は認証トークンの発行者を返す。ミドルウェアの検証に使用する。
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Signup はパスワードでユーザーを登録し、認証トークンを発行する。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, *Credential, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if err := ValidateSignup(name, email, in.Password); err != nil {
		return nil, nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewUserExistsError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:              uuid.NewString(),
		PasswordHash:    hash,
		Name:            name,
		Email:           email,
		CreatedListings: []string{},
		Favorites:       []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 同時登録でFindByEmailをすり抜けた場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewUserExistsError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	cred, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.RecordSignup(methodPassword)
	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("method", methodPassword),
	)
	return user, cred, nil
}

// Signin はパスワードでログインし、認証トークンを発行する。
// 未登録のメールアドレスはUSER_NOT_FOUND、パスワード不一致とGoogleのみのアカウントは
// INVALID_CREDENTIALSを返す。
func (s *Service) Signin(ctx context.Context, in SigninInput) (*model.User, *Credential, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateSignin(email, in.Password); err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		s.metrics.RecordLogin(methodPassword, metrics.ResultFailure)
		return nil, nil, model.NewUserNotFoundError()
	}
	if !user.HasPassword() || !s.hasher.Compare(in.Password, user.PasswordHash) {
		s.metrics.RecordLogin(methodPassword, metrics.ResultFailure)
		slog.Info("invalid credentials", slog.String("user_id", user.ID))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	cred, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.RecordLogin(methodPassword, metrics.ResultSuccess)
	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("method", methodPassword),
	)
	return user, cred, nil
}

// BeginOAuth はOAuth stateを発行してブラウザセッションIDに紐付け、
// Googleの認証URLとブラウザセッションIDを返す。
func (s *Service) BeginOAuth(ctx context.Context) (loginURL, browserSessionID string, err error) {
	state, err := randomHex(16)
	if err != nil {
		return "", "", err
	}
	sid, err := randomHex(16)
	if err != nil {
		return "", "", err
	}

	if err := s.states.Put(ctx, oauthStateKeyPrefix+sid, state, s.config.OAuthStateTTL); err != nil {
		return "", "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return s.oauth.GetLoginURL(state), sid, nil
}

// CompleteOAuth はOAuthコールバックを処理する。
// stateはブラウザセッションに紐付いた値と一致しなければならず、一致しない場合は
// STATE_MISMATCHを返して認証トークンを発行しない。stateは一致・不一致にかかわらず消費される。
func (s *Service) CompleteOAuth(ctx context.Context, browserSessionID, state, code string) (*OAuthResult, error) {
	if browserSessionID == "" || state == "" {
		return nil, model.NewStateMismatchError()
	}

	expected, ok, err := s.states.Take(ctx, oauthStateKeyPrefix+browserSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to take oauth state: %w", err)
	}
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		s.metrics.RecordLogin(methodGoogle, metrics.ResultFailure)
		slog.Warn("oauth state mismatch", slog.Bool("state_found", ok))
		return nil, model.NewStateMismatchError()
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(methodGoogle, metrics.ResultFailure)
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if !info.EmailVerified || info.Email == "" {
		s.metrics.RecordLogin(methodGoogle, metrics.ResultFailure)
		return nil, ErrEmailNotVerified
	}

	user, created, err := s.resolveGoogleUser(ctx, info)
	if err != nil {
		s.metrics.RecordLogin(methodGoogle, metrics.ResultFailure)
		return nil, err
	}

	cred, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	handoff, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	if err := s.states.Put(ctx, handoffKeyPrefix+handoff, handoffVerified, s.config.HandoffTTL); err != nil {
		return nil, fmt.Errorf("failed to store handoff code: %w", err)
	}

	if created {
		s.metrics.RecordSignup(methodGoogle)
	}
	s.metrics.RecordLogin(methodGoogle, metrics.ResultSuccess)
	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("method", methodGoogle),
		slog.Bool("new_user", created),
	)
	return &OAuthResult{User: user, Credential: cred, HandoffCode: handoff}, nil
}

// resolveGoogleUser はGoogleアカウントに対応するユーザーを作成または取得する。
func (s *Service) resolveGoogleUser(ctx context.Context, info *OAuthUserInfo) (*model.User, bool, error) {
	email := NormalizeEmail(info.Email)
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	now := s.now().UTC()
	candidate := &model.User{
		ID:              uuid.NewString(),
		GoogleID:        info.ProviderUserID,
		Name:            name,
		Email:           email,
		CreatedListings: []string{},
		Favorites:       []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	user, err := s.users.UpsertByGoogleID(ctx, candidate)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, false, model.NewUserExistsError()
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert google user: %w", err)
	}
	if user == nil {
		return nil, false, fmt.Errorf("upsert returned no user for google id")
	}
	return user, user.ID == candidate.ID, nil
}

// VerifyHandoff はハンドオフコードを消費する。成功するのは1つのコードにつき1回だけで、
// 空・未知・期限切れ・消費済みのコードはINVALID_STATEを返す。
func (s *Service) VerifyHandoff(ctx context.Context, code string) error {
	if code == "" {
		s.metrics.RecordHandoffVerification(metrics.ResultFailure)
		return model.NewInvalidStateError()
	}

	value, ok, err := s.states.Take(ctx, handoffKeyPrefix+code)
	if err != nil {
		return fmt.Errorf("failed to take handoff code: %w", err)
	}
	if !ok || value != handoffVerified {
		s.metrics.RecordHandoffVerification(metrics.ResultFailure)
		slog.Warn("invalid handoff code", slog.String("code_prefix", prefix(code, 6)))
		return model.NewInvalidStateError()
	}

	s.metrics.RecordHandoffVerification(metrics.ResultSuccess)
	return nil
}

// randomHex は暗号的に安全なnバイトの乱数を16進文字列で返す。
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random value: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// prefix はログ出力用に値の先頭n文字のみを返す。
func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
