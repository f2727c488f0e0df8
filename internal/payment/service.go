// Package payment は募集公開プランの決済と、決済確認後の募集公開を提供する。
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
)

// Currency は決済に使用する通貨。
const Currency = "usd"

// ListingPublisher は決済対象の募集の所有者確認と公開を行うインターフェース。
type ListingPublisher interface {
	OwnedListing(ctx context.Context, callerID, listingID string) (*model.Listing, error)
	Publish(ctx context.Context, listingID string, pkg model.PackageType, now time.Time) (*model.Listing, error)
}

// IntentInput は支払い意図作成の入力。
type IntentInput struct {
	ListingID   string `json:"formId"`
	PackageType string `json:"packageType"`
}

// ConfirmInput は決済確認の入力。
type ConfirmInput struct {
	ListingID             string `json:"formId"`
	PackageType           string `json:"packageType"`
	ProviderTransactionID string `json:"stripePaymentId"`
}

// IntentResult は支払い意図作成の結果。
type IntentResult struct {
	ClientSecret string            `json:"clientSecret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	PackageType  model.PackageType `json:"packageType"`
}

// Service は決済のサービス層。
type Service struct {
	payments repository.PaymentRepository
	provider Provider
	listings ListingPublisher
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// providerがnilの場合、全ての操作はPAYMENTS_DISABLEDを返す。
func NewService(payments repository.PaymentRepository, provider Provider, listings ListingPublisher) *Service {
	return &Service{
		payments: payments,
		provider: provider,
		listings: listings,
		now:      time.Now,
	}
}

// Enabled は決済機能が有効かどうかを返す。
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// CreateIntent は募集公開プランの支払い意図を作成し、クライアントシークレットを返す。
// 募集の作成者のみ実行できる。
func (s *Service) CreateIntent(ctx context.Context, userID string, in IntentInput) (*IntentResult, error) {
	if !s.Enabled() {
		return nil, model.NewPaymentsDisabledError()
	}
	pkg, err := validate(in.ListingID, in.PackageType, nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.listings.OwnedListing(ctx, userID, in.ListingID); err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, pkg.AmountCents(), Currency, map[string]string{
		"userId":      userID,
		"formId":      in.ListingID,
		"packageType": string(pkg),
	})
	if err != nil {
		return nil, fmt.Errorf("支払い意図の作成に失敗しました: %w", err)
	}

	slog.Info("payment intent created",
		slog.String("user_id", userID),
		slog.String("listing_id", in.ListingID),
		slog.String("intent_id", intent.ID),
	)
	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		Amount:       pkg.AmountCents(),
		Currency:     Currency,
		PackageType:  pkg,
	}, nil
}

// Confirm は決済事業者に支払い完了を確認したうえで決済を記録し、募集を公開する。
// 同じトランザクションIDでの再確認は記録済みの決済を返し、公開をやり直さない。
func (s *Service) Confirm(ctx context.Context, userID string, in ConfirmInput) (*model.Payment, error) {
	if !s.Enabled() {
		return nil, model.NewPaymentsDisabledError()
	}
	var fields map[string]string
	if strings.TrimSpace(in.ProviderTransactionID) == "" {
		fields = map[string]string{"stripePaymentId": "決済IDを指定してください。"}
	}
	pkg, err := validate(in.ListingID, in.PackageType, fields)
	if err != nil {
		return nil, err
	}

	existing, err := s.payments.FindByProviderTransactionID(ctx, in.ProviderTransactionID)
	if err != nil {
		return nil, fmt.Errorf("決済記録の取得に失敗しました: %w", err)
	}
	if existing != nil {
		return s.replay(ctx, userID, in.ListingID, existing)
	}

	if _, err := s.listings.OwnedListing(ctx, userID, in.ListingID); err != nil {
		return nil, err
	}

	intent, err := s.provider.GetIntent(ctx, in.ProviderTransactionID)
	if err != nil {
		return nil, fmt.Errorf("決済状態の確認に失敗しました: %w", err)
	}
	if err := verifyIntent(intent, userID, in.ListingID, pkg); err != nil {
		slog.Warn("payment not confirmed",
			slog.String("intent_id", intent.ID),
			slog.String("status", intent.Status),
			slog.String("listing_id", in.ListingID),
		)
		return nil, err
	}

	now := s.now().UTC()
	payment := &model.Payment{
		ID:                    uuid.NewString(),
		UserID:                userID,
		ListingID:             in.ListingID,
		PackageType:           pkg,
		Amount:                intent.Amount,
		Currency:              strings.ToLower(intent.Currency),
		ProviderTransactionID: in.ProviderTransactionID,
		Status:                model.PaymentSucceeded,
		PaymentDate:           now,
		CreatedAt:             now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// 同時に確認されたリクエストが先に記録した
			stored, findErr := s.payments.FindByProviderTransactionID(ctx, in.ProviderTransactionID)
			if findErr == nil && stored != nil {
				return s.replay(ctx, userID, in.ListingID, stored)
			}
		}
		return nil, fmt.Errorf("決済の記録に失敗しました: %w", err)
	}

	if _, err := s.listings.Publish(ctx, in.ListingID, pkg, now); err != nil {
		return nil, err
	}

	slog.Info("payment confirmed",
		slog.String("payment_id", payment.ID),
		slog.String("listing_id", in.ListingID),
		slog.String("package", string(pkg)),
	)
	return payment, nil
}

// replay は記録済みの決済に対する再確認を処理する。
// 記録後の公開が失敗していた場合に限り、決済日時を基準に公開し直す。
func (s *Service) replay(ctx context.Context, userID, listingID string, existing *model.Payment) (*model.Payment, error) {
	if existing.UserID != userID || existing.ListingID != listingID {
		return nil, model.NewForbiddenError()
	}
	l, err := s.listings.OwnedListing(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	if l.PublishDate == nil {
		if _, err := s.listings.Publish(ctx, listingID, existing.PackageType, existing.PaymentDate); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// History はユーザーの決済履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, userID string) ([]*model.Payment, error) {
	if !s.Enabled() {
		return nil, model.NewPaymentsDisabledError()
	}
	payments, err := s.payments.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("決済履歴の取得に失敗しました: %w", err)
	}
	return payments, nil
}

// validate は入力を検証し、プランを返す。fieldsには呼び出し元で検出した違反を渡す。
func validate(listingID, rawPackage string, fields map[string]string) (model.PackageType, error) {
	if fields == nil {
		fields = make(map[string]string)
	}
	if strings.TrimSpace(listingID) == "" {
		fields["formId"] = "募集を指定してください。"
	}
	pkg, ok := model.ParsePackageType(rawPackage)
	if !ok {
		fields["packageType"] = "プランはmonthlyまたはuntil-foundを指定してください。"
	}
	if len(fields) > 0 {
		return "", model.NewValidationError(fields)
	}
	return pkg, nil
}

// verifyIntent は支払いが完了しており、金額がプランと一致し、
// 作成時のメタデータが確認者と対象募集に一致することを確認する。
func verifyIntent(intent *Intent, userID, listingID string, pkg model.PackageType) error {
	if intent.Status != IntentSucceeded {
		return model.NewPaymentNotConfirmedError(intent.Status)
	}
	if intent.Amount != pkg.AmountCents() || !strings.EqualFold(intent.Currency, Currency) {
		return model.NewPaymentNotConfirmedError("amount_mismatch")
	}
	if intent.Metadata["formId"] != listingID {
		return model.NewPaymentNotConfirmedError("listing_mismatch")
	}
	if intent.Metadata["userId"] != userID {
		return model.NewPaymentNotConfirmedError("user_mismatch")
	}
	return nil
}
