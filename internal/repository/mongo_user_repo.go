package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/roomie/internal/model"
)

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	col *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{col: db.Collection(ColUsers)}
}

// FindByID は指定IDのユーザーを取得する。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, byID(id))
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.D{{Key: "email", Value: email}})
}

// FindByGoogleID はGoogleのsubjectでユーザーを取得する。
func (r *MongoUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.D{{Key: "googleId", Value: googleID}})
}

// Create はユーザーを作成する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	doc := *user
	if doc.CreatedListings == nil {
		doc.CreatedListings = []string{}
	}
	if doc.Favorites == nil {
		doc.Favorites = []string{}
	}
	_, err := r.col.InsertOne(ctx, &doc)
	if err != nil {
		if errors.Is(wrapMongoError(err), ErrDuplicate) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpsertByGoogleID はGoogleIDで冪等にユーザーを作成し、保存済みのレコードを返す。
// googleIdでのupsertが一意制約（email）に衝突した場合は、Google未連携の既存ユーザーに連携する。
func (r *MongoUserRepo) UpsertByGoogleID(ctx context.Context, user *model.User) (*model.User, error) {
	filter := bson.D{{Key: "googleId", Value: user.GoogleID}}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "_id", Value: user.ID},
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "lifestyle", Value: user.Lifestyle},
		{Key: "contactInfo", Value: user.ContactInfo},
		{Key: "createdListings", Value: bson.A{}},
		{Key: "favorites", Value: bson.A{}},
		{Key: "privacySettings", Value: user.Privacy},
		{Key: "createdAt", Value: user.CreatedAt},
		{Key: "updatedAt", Value: user.UpdatedAt},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored model.User
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if err == nil {
		return &stored, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 並行upsertに負けた場合は既に作成されている
	if existing, findErr := r.FindByGoogleID(ctx, user.GoogleID); findErr != nil || existing != nil {
		return existing, findErr
	}

	res, err := r.col.UpdateOne(ctx,
		bson.D{
			{Key: "email", Value: user.Email},
			{Key: "googleId", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "googleId", Value: user.GoogleID},
			{Key: "updatedAt", Value: time.Now()},
		}}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link google account: %w", wrapMongoError(err))
	}
	if res.MatchedCount == 0 {
		return nil, ErrDuplicate
	}
	return r.FindByGoogleID(ctx, user.GoogleID)
}

// AddCreatedListing は作成した募集IDをユーザーに追加する。
func (r *MongoUserRepo) AddCreatedListing(ctx context.Context, userID, listingID string) error {
	_, err := r.col.UpdateOne(ctx, byID(userID), bson.D{
		{Key: "$push", Value: bson.D{{Key: "createdListings", Value: listingID}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now()}}},
	})
	if err != nil {
		return fmt.Errorf("failed to add created listing: %w", err)
	}
	return nil
}

// AddFavorite はお気に入りに追加する。$addToSetのため重複しない。
func (r *MongoUserRepo) AddFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx, byID(userID), bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "favorites", Value: listingID}}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// RemoveFavorite はお気に入りから削除する。
func (r *MongoUserRepo) RemoveFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx, byID(userID), bson.D{
		{Key: "$pull", Value: bson.D{{Key: "favorites", Value: listingID}}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
