// Package submission は募集への応募の受付と、募集者による応募管理のドメインロジックを提供する。
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomie/internal/listing"
	"github.com/hitoshi/roomie/internal/metrics"
	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
	"github.com/hitoshi/roomie/internal/security"
)

// SubmitInput は応募の入力。
type SubmitInput struct {
	ListingID string                 `json:"formId"`
	Submitter model.SubmitterProfile `json:"submitter"`
}

// StatusResult は応募状態の更新結果。
type StatusResult struct {
	SubmissionID string                  `json:"submissionId"`
	Status       model.ApplicationStatus `json:"status"`
	ResponseRate float64                 `json:"responseRate"`
}

// Service は応募管理のサービス層。
type Service struct {
	submissions repository.SubmissionRepository
	listings    repository.ListingRepository
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	submissions repository.SubmissionRepository,
	listings repository.ListingRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		submissions: submissions,
		listings:    listings,
		sanitizer:   sanitizer,
		metrics:     collector,
		now:         time.Now,
	}
}

// Submit は募集への応募を保存する。
// callerがnilの場合は匿名応募として扱う。認証済みの場合は応募者IDを記録し、
// 「自分の応募」一覧から参照できるようにする。
func (s *Service) Submit(ctx context.Context, in SubmitInput, caller *model.Caller) (*model.Submission, error) {
	listingID := strings.TrimSpace(in.ListingID)
	if listingID == "" {
		return nil, model.NewValidationError(map[string]string{"formId": "応募先の募集を指定してください。"})
	}

	target, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("募集の取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	profile := s.sanitizeProfile(in.Submitter)
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &model.Submission{
		ID:        uuid.NewString(),
		ListingID: listingID,
		Submitter: profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if caller != nil {
		sub.SubmitterUserID = caller.UserID
	}

	if err := s.submissions.CreateForListing(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewListingNotFoundError(listingID)
		}
		return nil, fmt.Errorf("応募の保存に失敗しました: %w", err)
	}

	s.metrics.RecordSubmission(caller != nil)
	slog.Info("submission received",
		slog.String("submission_id", sub.ID),
		slog.String("listing_id", listingID),
		slog.Bool("authenticated", caller != nil),
	)
	return sub, nil
}

// ListForOwner は募集への応募を新しい順に返す。募集者のみ参照できる。
func (s *Service) ListForOwner(ctx context.Context, callerID, listingID string) ([]*model.Submission, error) {
	if _, err := s.ownedListing(ctx, callerID, listingID); err != nil {
		return nil, err
	}
	subs, err := s.submissions.FindByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// ListForApplicant は呼び出し元が認証済みで行った応募を新しい順に返す。
func (s *Service) ListForApplicant(ctx context.Context, callerID string) ([]*model.Submission, error) {
	subs, err := s.submissions.FindBySubmitter(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// UpdateStatus は応募の審査状態を更新し、募集の返信率を再計算する。
// 所有者の判定は応募の募集を経由して行う。
func (s *Service) UpdateStatus(ctx context.Context, callerID, submissionID string, status model.ApplicationStatus) (*StatusResult, error) {
	if !status.Valid() {
		return nil, model.NewValidationError(map[string]string{"status": "状態はpendingまたはrejectedを指定してください。"})
	}

	sub, err := s.ownedSubmission(ctx, callerID, submissionID)
	if err != nil {
		return nil, err
	}

	updated, err := s.listings.UpdateApplicationStatus(ctx, sub.ListingID, sub.ID, status)
	if err != nil {
		return nil, fmt.Errorf("応募状態の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewSubmissionNotFoundError(submissionID)
	}

	rate := model.ResponseRate(updated.Applications)
	if err := s.listings.SetResponseRate(ctx, sub.ListingID, rate); err != nil {
		return nil, fmt.Errorf("返信率の更新に失敗しました: %w", err)
	}

	slog.Info("submission status updated",
		slog.String("submission_id", sub.ID),
		slog.String("status", string(status)),
		slog.Float64("response_rate", rate),
	)
	return &StatusResult{SubmissionID: sub.ID, Status: status, ResponseRate: rate}, nil
}

// MarkRead は応募を既読にする。既読の応募に対しては何もせず成功を返す。
func (s *Service) MarkRead(ctx context.Context, callerID, submissionID string) (*model.Submission, error) {
	sub, err := s.ownedSubmission(ctx, callerID, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.IsRead {
		return sub, nil
	}

	updated, err := s.submissions.MarkRead(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("既読の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewSubmissionNotFoundError(submissionID)
	}
	return updated, nil
}

func (s *Service) ownedListing(ctx context.Context, callerID, listingID string) (*model.Listing, error) {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("募集の取得に失敗しました: %w", err)
	}
	if l == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}
	if !listing.CallerOwns(l, callerID) {
		return nil, model.NewForbiddenError()
	}
	return l, nil
}

// ownedSubmission は応募を取得し、呼び出し元が応募先募集の作成者であることを確認する。
func (s *Service) ownedSubmission(ctx context.Context, callerID, submissionID string) (*model.Submission, error) {
	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubmissionNotFoundError(submissionID)
	}
	if _, err := s.ownedListing(ctx, callerID, sub.ListingID); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeListingNotFound {
			return nil, model.NewSubmissionNotFoundError(submissionID)
		}
		return nil, err
	}
	return sub, nil
}
