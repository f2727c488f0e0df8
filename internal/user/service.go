// Package user はログイン中ユーザーのプロフィールとお気に入りを提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/repository"
)

// Profile はログイン中ユーザーの情報。お気に入りは募集の内容まで展開する。
type Profile struct {
	*model.User
	FavoriteListings []*model.Listing `json:"favoriteListings"`
}

// Service はユーザー情報のサービス層。
type Service struct {
	users    repository.UserRepository
	listings repository.ListingRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users repository.UserRepository, listings repository.ListingRepository) *Service {
	return &Service{users: users, listings: listings}
}

// Me は指定ユーザーのプロフィールを返す。
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	favorites, err := s.resolveFavorites(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, FavoriteListings: favorites}, nil
}

// Favorites はユーザーがお気に入りに追加した募集を追加順に返す。
// 削除済みの募集は含めない。
func (s *Service) Favorites(ctx context.Context, userID string) ([]*model.Listing, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolveFavorites(ctx, user)
}

func (s *Service) find(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// resolveFavorites はお気に入りIDを募集に展開し、IDの順序に並べ直す。
func (s *Service) resolveFavorites(ctx context.Context, user *model.User) ([]*model.Listing, error) {
	if len(user.Favorites) == 0 {
		return []*model.Listing{}, nil
	}
	found, err := s.listings.FindByIDs(ctx, user.Favorites)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの取得に失敗しました: %w", err)
	}

	index := make(map[string]*model.Listing, len(found))
	for _, l := range found {
		index[l.ID] = l
	}
	out := make([]*model.Listing, 0, len(found))
	for _, id := range user.Favorites {
		if l, ok := index[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}
