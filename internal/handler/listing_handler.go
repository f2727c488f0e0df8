package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomie/internal/listing"
	"github.com/hitoshi/roomie/internal/media"
	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/model"
)

const (
	// listingDataField はmultipart形式で募集内容のJSONを格納するフィールド名。
	listingDataField = "data"
	// listingImageField はmultipart形式で画像を格納するフィールド名。
	listingImageField = "image"
	// maxMultipartMemory はmultipartのメモリ上限。超えた分は一時ファイルに退避される。
	maxMultipartMemory = 8 << 20
)

// ListingServiceInterface は募集ハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	Create(ctx context.Context, ownerID string, in listing.CreateInput, image *media.Upload) (*model.Listing, error)
	List(ctx context.Context, filter model.ListingFilter) ([]*model.Listing, error)
	Get(ctx context.Context, listingID string) (*model.Listing, error)
	Update(ctx context.Context, callerID, listingID string, patch model.ListingPatch) (*model.Listing, error)
	Boost(ctx context.Context, callerID, listingID string) (*model.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error)
	ToggleFavorite(ctx context.Context, userID, listingID string) (listing.FavoriteAction, error)
	Feed(ctx context.Context, filter model.ListingFilter, frontendURL string) ([]byte, error)
}

// ListingHandler は募集のHTTPハンドラー。
type ListingHandler struct {
	service     ListingServiceInterface
	frontendURL string
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ListingServiceInterface, frontendURL string) *ListingHandler {
	return &ListingHandler{service: service, frontendURL: frontendURL}
}

// List は公開中の募集を返す。
// GET /api/v1/forms?university=&minPrice=&maxPrice=
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listing.ParseFilter(r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	listings, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// Feed は公開中の募集のRSSフィードを返す。
// GET /api/v1/forms/feed.rss
func (h *ListingHandler) Feed(w http.ResponseWriter, r *http.Request) {
	filter, err := listing.ParseFilter(r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	body, err := h.service.Feed(r.Context(), filter, h.frontendURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(body)
}

// Get は募集を1件返し、閲覧数を増やす。
// GET /api/v1/forms/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Create は募集を下書きとして作成する。
// POST /api/v1/forms
//
// application/jsonの場合はボディ全体を募集内容とする。multipart/form-dataの場合は
// "data"フィールドに募集内容のJSON、任意の"image"フィールドに画像を受け付ける。
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in listing.CreateInput
	var image *media.Upload
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var cleanup func()
		var err error
		in, image, cleanup, err = parseListingMultipart(w, r)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		defer cleanup()
	} else if !decodeJSON(w, r, &in) {
		return
	}

	created, err := h.service.Create(r.Context(), userID, in, image)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// parseListingMultipart はmultipartリクエストから募集内容と画像を取り出す。
func parseListingMultipart(w http.ResponseWriter, r *http.Request) (listing.CreateInput, *media.Upload, func(), error) {
	var in listing.CreateInput
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageSize+maxJSONBodyBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return in, nil, nil, err
	}
	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("failed to remove multipart files", slog.String("error", err.Error()))
		}
	}

	if err := json.Unmarshal([]byte(r.FormValue(listingDataField)), &in); err != nil {
		cleanup()
		return in, nil, nil, err
	}

	file, header, err := r.FormFile(listingImageField)
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, cleanup, nil
	}
	if err != nil {
		cleanup()
		return in, nil, nil, err
	}
	return in, uploadFrom(file, header), func() {
		file.Close()
		cleanup()
	}, nil
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) *media.Upload {
	return &media.Upload{
		Reader:      file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}
}

// Update は募集の許可された項目を更新する。作成者のみ実行できる。
// PUT /api/v1/forms/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var patch model.ListingPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Boost は募集をブーストする。作成者のみ実行できる。
// POST /api/v1/forms/{id}/boost
func (h *ListingHandler) Boost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	boosted, err := h.service.Boost(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boosted)
}

// Favorite はお気に入りを切り替える。
// POST /api/v1/forms/{id}/favorite
func (h *ListingHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	action, err := h.service.ToggleFavorite(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	msg := "Added to favorites"
	if action == listing.FavoriteRemoved {
		msg = "Removed from favorites"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// MyListings はログイン中ユーザーが作成した募集を返す。
// GET /api/v1/forms/my-listings
func (h *ListingHandler) MyListings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	listings, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}
