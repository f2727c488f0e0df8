package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// IntentSucceeded は支払いが完了したPaymentIntentの状態。
const IntentSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// Intent は決済事業者側の支払い意図（PaymentIntent）を表す。
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Provider は決済事業者のインターフェース。
type Provider interface {
	// CreateIntent は支払い意図を作成する。
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	// GetIntent は支払い意図を取得する。
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// StripeConfig はStripeProviderの設定。
type StripeConfig struct {
	SecretKey string
	// APIURL はAPIのベースURL。空の場合はStripe本番API（stripe-mock等を使う場合に指定）。
	APIURL string
	// HTTPClient はAPI呼び出しに使うクライアント。nilの場合はstripe-goの既定値。
	HTTPClient *http.Client
	// MaxNetworkRetries は通信失敗時の再試行回数。nilの場合はstripe-goの既定値。
	MaxNetworkRetries *int64
	Logger            *slog.Logger
}

// StripeProvider はstripe-goのPaymentIntentクライアントを使用したProvider。
type StripeProvider struct {
	intents paymentintent.Client
}

// NewStripeProvider はStripeProviderを生成する。
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: cfg.MaxNetworkRetries,
		LeveledLogger:     &slogLeveledLogger{logger: logger},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	return &StripeProvider{
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}
}

// CreateIntent はPaymentIntentを作成する。
func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, wrapStripeError("failed to create payment intent", err)
	}
	return toIntent(pi)
}

// GetIntent はPaymentIntentを取得する。
func (p *StripeProvider) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.intents.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("failed to get payment intent", err)
	}
	return toIntent(pi)
}

func toIntent(pi *stripe.PaymentIntent) (*Intent, error) {
	if pi == nil || pi.ID == "" {
		return nil, errors.New("stripe response has no payment intent id")
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}, nil
}

// wrapStripeError はStripeのAPIエラーからステータスとメッセージを取り出してラップする。
func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%s: stripe returned status %d: %s (%s): %w", op, se.HTTPStatusCode, se.Msg, se.Type, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// slogLeveledLogger はstripe-goのログをslogへ流す。
type slogLeveledLogger struct {
	logger *slog.Logger
}

func (l *slogLeveledLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *slogLeveledLogger) Infof(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *slogLeveledLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *slogLeveledLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

// compile-time interface check
var (
	_ Provider                     = (*StripeProvider)(nil)
	_ stripe.LeveledLoggerInterface = (*slogLeveledLogger)(nil)
)
