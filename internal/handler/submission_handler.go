package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/submission"
)

// SubmissionServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type SubmissionServiceInterface interface {
	Submit(ctx context.Context, in submission.SubmitInput, caller *model.Caller) (*model.Submission, error)
	ListForOwner(ctx context.Context, callerID, listingID string) ([]*model.Submission, error)
	ListForApplicant(ctx context.Context, callerID string) ([]*model.Submission, error)
	UpdateStatus(ctx context.Context, callerID, submissionID string, status model.ApplicationStatus) (*submission.StatusResult, error)
	MarkRead(ctx context.Context, callerID, submissionID string) (*model.Submission, error)
}

// SubmissionHandler は応募のHTTPハンドラー。
type SubmissionHandler struct {
	service SubmissionServiceInterface
}

// NewSubmissionHandler はSubmissionHandlerを生成する。
func NewSubmissionHandler(service SubmissionServiceInterface) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

type statusRequest struct {
	Status model.ApplicationStatus `json:"status"`
}

// Submit は応募を受け付ける。ログインしていない場合も匿名で応募できる。
// POST /api/v1/submissions
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in submission.SubmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	created, err := h.service.Submit(r.Context(), in, middleware.CallerFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListForListing は募集への応募一覧を返す。募集の作成者のみ実行できる。
// GET /api/v1/submissions/form/{formId}
func (h *SubmissionHandler) ListForListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	subs, err := h.service.ListForOwner(r.Context(), userID, chi.URLParam(r, "formId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// MySubmissions はログイン中ユーザーの応募一覧を返す。
// GET /api/v1/submissions/my-submissions
func (h *SubmissionHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	subs, err := h.service.ListForApplicant(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// UpdateStatus は応募の状態を更新する。
// PUT /api/v1/submissions/{id}/status
func (h *SubmissionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.UpdateStatus(r.Context(), userID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MarkRead は応募を既読にする。
// PUT /api/v1/submissions/{id}/read
func (h *SubmissionHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
