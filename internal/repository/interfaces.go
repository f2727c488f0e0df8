// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQL実装とMongoDB実装を持ち、STORAGE_DRIVERで切り替える。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/roomie/internal/model"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrNotFound は参照先のレコードが存在しないことを表す。
	ErrNotFound = errors.New("repository: not found")
)

// BrowseLimit は募集一覧で返す最大件数。
const BrowseLimit = 100

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogleのsubjectでユーザーを取得する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpsertByGoogleID はGoogleIDで冪等にユーザーを作成し、保存済みのレコードを返す。
	// 同じメールアドレスのGoogle未連携ユーザーが存在する場合はそのユーザーに連携する。
	// メールアドレスが別のGoogleアカウントに連携済みの場合はErrDuplicateを返す。
	UpsertByGoogleID(ctx context.Context, user *model.User) (*model.User, error)

	// AddCreatedListing は作成した募集IDをユーザーに追加する。
	AddCreatedListing(ctx context.Context, userID, listingID string) error

	// AddFavorite はお気に入りに追加する。既に追加済みの場合はfalseを返す。
	AddFavorite(ctx context.Context, userID, listingID string) (bool, error)

	// RemoveFavorite はお気に入りから削除する。未追加の場合はfalseを返す。
	RemoveFavorite(ctx context.Context, userID, listingID string) (bool, error)
}

// ListingRepository は募集データの永続化インターフェース。
type ListingRepository interface {
	// Create は募集を作成する。
	Create(ctx context.Context, listing *model.Listing) error

	// FindByID は指定IDの募集を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Listing, error)

	// FindByIDs は指定IDの募集をまとめて取得する。存在しないIDは無視する。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Listing, error)

	// FindVisible は公開中（is_active かつ now 時点で有効期限内）の募集を
	// boost_status降順、publish_date降順で最大limit件返す。
	FindVisible(ctx context.Context, filter model.ListingFilter, now time.Time, limit int) ([]*model.Listing, error)

	// FindByOwner は指定ユーザーが作成した募集を新しい順に返す。
	FindByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error)

	// IncrementViews は閲覧数をアトミックに1増やし、更新後の募集を返す。
	// 見つからない場合はnilを返す。
	IncrementViews(ctx context.Context, id string) (*model.Listing, error)

	// ApplyPatch は許可された項目のみを更新し、更新後の募集を返す。
	// 見つからない場合はnilを返す。
	ApplyPatch(ctx context.Context, id string, patch model.ListingPatch) (*model.Listing, error)

	// Publish は募集を公開状態にする。
	Publish(ctx context.Context, id string, publishDate, expirationDate time.Time) (*model.Listing, error)

	// Boost はブーストを有効にする。
	Boost(ctx context.Context, id string, until time.Time) (*model.Listing, error)

	// UpdateApplicationStatus は埋め込まれた応募参照の状態を更新し、更新後の募集を返す。
	// 該当する応募参照がない場合はnilを返す。
	UpdateApplicationStatus(ctx context.Context, listingID, submissionID string, status model.ApplicationStatus) (*model.Listing, error)

	// SetResponseRate は返信率を保存する。
	SetResponseRate(ctx context.Context, id string, rate float64) error

	// DeactivateExpired は有効期限を過ぎた公開中の募集を非公開にし、件数を返す。
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)

	// ClearLapsedBoosts はブースト期限を過ぎた募集のブーストを解除し、件数を返す。
	ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error)
}

// SubmissionRepository は応募データの永続化インターフェース。
type SubmissionRepository interface {
	// CreateForListing は応募を保存し、募集に応募参照（pending）を追加して
	// 応募数を1増やす。募集が存在しない場合はErrNotFoundを返し、何も保存しない。
	CreateForListing(ctx context.Context, submission *model.Submission) error

	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Submission, error)

	// FindByListing は募集への応募を新しい順に返す。
	FindByListing(ctx context.Context, listingID string) ([]*model.Submission, error)

	// FindBySubmitter は指定ユーザーの応募を新しい順に返す。
	FindBySubmitter(ctx context.Context, userID string) ([]*model.Submission, error)

	// MarkRead は応募を既読にし、更新後の応募を返す。見つからない場合はnilを返す。
	MarkRead(ctx context.Context, id string) (*model.Submission, error)
}

// PaymentRepository は決済記録の永続化インターフェース。
type PaymentRepository interface {
	// Create は決済記録を作成する。同一トランザクションIDの重複時はErrDuplicateを返す。
	Create(ctx context.Context, payment *model.Payment) error

	// FindByProviderTransactionID は決済事業者のトランザクションIDで検索する。
	// 見つからない場合はnilを返す。
	FindByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error)

	// FindByUser は指定ユーザーの決済記録を新しい順に返す。
	FindByUser(ctx context.Context, userID string) ([]*model.Payment, error)
}
