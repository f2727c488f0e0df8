package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateIntent(ctx context.Context, userID string, in payment.IntentInput) (*payment.IntentResult, error)
	Confirm(ctx context.Context, userID string, in payment.ConfirmInput) (*model.Payment, error)
	History(ctx context.Context, userID string) ([]*model.Payment, error)
}

// PaymentHandler は決済のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type confirmResponse struct {
	Message string         `json:"message"`
	Payment *model.Payment `json:"payment"`
}

// CreateIntent は公開プランの支払い意図を作成する。
// POST /api/v1/payments/create-intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var in payment.IntentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	result, err := h.service.CreateIntent(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Confirm は支払い完了を確認し、募集を公開する。
// POST /api/v1/payments/confirm
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var in payment.ConfirmInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.service.Confirm(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Message: "Payment confirmed and listing published", Payment: p})
}

// History はログイン中ユーザーの決済履歴を返す。
// GET /api/v1/payments/history
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}
