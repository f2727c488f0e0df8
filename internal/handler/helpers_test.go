package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/model"
)

// withCaller は認証済みユーザーをリクエストのコンテキストに設定する。
func withCaller(r *http.Request, userID string) *http.Request {
	caller := &model.Caller{UserID: userID, Email: userID + "@example.com", Name: userID}
	return r.WithContext(middleware.ContextWithCaller(r.Context(), caller))
}

// decodeErrorBody はエラーレスポンスのボディをデコードする。
func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// assertErrorResponse はステータスコードとエラーコードを検証する。
func assertErrorResponse(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, wantStatus, rec.Body.String())
	}
	if body := decodeErrorBody(t, rec); body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

// findCookie はレスポンスから指定名のCookieを取り出す。
func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
