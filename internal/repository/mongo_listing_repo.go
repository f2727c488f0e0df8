package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/roomie/internal/model"
)

// MongoListingRepo はMongoDBを使用した募集リポジトリ。
// 応募参照はドキュメントのapplications配列に埋め込む。
type MongoListingRepo struct {
	col *mongo.Collection
}

// NewMongoListingRepo はMongoListingRepoを生成する。
func NewMongoListingRepo(db *mongo.Database) *MongoListingRepo {
	return &MongoListingRepo{col: db.Collection(ColListings)}
}

// buildVisibleFilter は公開中募集の検索条件を構築する。
// isActive: true と有効期限の条件は常に含まれる。
func buildVisibleFilter(filter model.ListingFilter, now time.Time) bson.D {
	f := bson.D{
		{Key: "isActive", Value: true},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "expirationDate", Value: nil}},
			bson.D{{Key: "expirationDate", Value: bson.D{{Key: "$gte", Value: now}}}},
		}},
	}

	if filter.University != "" {
		f = append(f, bson.E{Key: "roomDetails.nearbyUniversity", Value: filter.University})
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		rent := bson.D{}
		if filter.MinPrice != nil {
			rent = append(rent, bson.E{Key: "$gte", Value: *filter.MinPrice})
		}
		if filter.MaxPrice != nil {
			rent = append(rent, bson.E{Key: "$lte", Value: *filter.MaxPrice})
		}
		f = append(f, bson.E{Key: "roomDetails.monthlyRent", Value: rent})
	}
	return f
}

// effectiveBoostField は集計時に付与する、基準時刻でブーストが有効かどうかのフィールド。
const effectiveBoostField = "effectiveBoost"

// buildVisiblePipeline は公開中募集を検索する集計パイプラインを構築する。
// 一覧順ではboostedUntilが基準時刻より後の募集だけを優先する。
func buildVisiblePipeline(filter model.ListingFilter, now time.Time, limit int) mongo.Pipeline {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: buildVisibleFilter(filter, now)}}}

	if filter.Order == model.OrderNewest {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{
			{Key: "publishDate", Value: -1},
			{Key: "createdAt", Value: -1},
		}}})
	} else {
		pipeline = append(pipeline,
			bson.D{{Key: "$addFields", Value: bson.D{{Key: effectiveBoostField, Value: bson.D{
				{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$boostStatus", true}}},
					bson.D{{Key: "$gt", Value: bson.A{"$boostedUntil", now}}},
				}},
			}}}}},
			bson.D{{Key: "$sort", Value: bson.D{
				{Key: effectiveBoostField, Value: -1},
				{Key: "publishDate", Value: -1},
			}}},
			bson.D{{Key: "$project", Value: bson.D{{Key: effectiveBoostField, Value: 0}}}},
		)
	}
	return append(pipeline, bson.D{{Key: "$limit", Value: int64(limit)}})
}

// Create は募集を作成する。
func (r *MongoListingRepo) Create(ctx context.Context, l *model.Listing) error {
	doc := *l
	if doc.Applications == nil {
		doc.Applications = []model.ApplicationRef{}
	}
	if _, err := r.col.InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("failed to insert listing: %w", wrapMongoError(err))
	}
	return nil
}

// FindByID は指定IDの募集を取得する。
func (r *MongoListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	return findOne[model.Listing](ctx, r.col, byID(id))
}

// FindByIDs は指定IDの募集をまとめて取得する。
func (r *MongoListingRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Listing, error) {
	if len(ids) == 0 {
		return []*model.Listing{}, nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	return findMany[model.Listing](ctx, r.col, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// FindVisible は公開中の募集をfilter.Orderの順で返す。
func (r *MongoListingRepo) FindVisible(ctx context.Context, filter model.ListingFilter, now time.Time, limit int) ([]*model.Listing, error) {
	return aggregateMany[model.Listing](ctx, r.col, buildVisiblePipeline(filter, now, limit))
}

// FindByOwner は指定ユーザーが作成した募集を新しい順に返す。
func (r *MongoListingRepo) FindByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	return findMany[model.Listing](ctx, r.col, bson.D{{Key: "owner", Value: ownerID}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// IncrementViews は閲覧数を$incでアトミックに1増やす。
func (r *MongoListingRepo) IncrementViews(ctx context.Context, id string) (*model.Listing, error) {
	return findOneAndUpdate[model.Listing](ctx, r.col, byID(id), bson.D{
		{Key: "$inc", Value: bson.D{{Key: "analytics.views", Value: 1}}},
	})
}

// ApplyPatch は許可された項目のみを更新する。
func (r *MongoListingRepo) ApplyPatch(ctx context.Context, id string, patch model.ListingPatch) (*model.Listing, error) {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "roomDetails.description", Value: *patch.Description})
	}
	if patch.Currency != nil {
		set = append(set, bson.E{Key: "roomDetails.currency", Value: *patch.Currency})
	}
	if patch.IsActive != nil {
		set = append(set, bson.E{Key: "isActive", Value: *patch.IsActive})
	}
	if patch.Owner != nil {
		set = append(set, bson.E{Key: "ownerDetails", Value: *patch.Owner})
	}
	return findOneAndUpdate[model.Listing](ctx, r.col, byID(id), bson.D{{Key: "$set", Value: set}})
}

// Publish は募集を公開状態にする。
func (r *MongoListingRepo) Publish(ctx context.Context, id string, publishDate, expirationDate time.Time) (*model.Listing, error) {
	return findOneAndUpdate[model.Listing](ctx, r.col, byID(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "isActive", Value: true},
		{Key: "publishDate", Value: publishDate},
		{Key: "expirationDate", Value: expirationDate},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// Boost はブーストを有効にする。
func (r *MongoListingRepo) Boost(ctx context.Context, id string, until time.Time) (*model.Listing, error) {
	return findOneAndUpdate[model.Listing](ctx, r.col, byID(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "boostStatus", Value: true},
		{Key: "boostedUntil", Value: until},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// UpdateApplicationStatus は位置指定演算子$で一致した応募参照のみを更新する。
func (r *MongoListingRepo) UpdateApplicationStatus(ctx context.Context, listingID, submissionID string, status model.ApplicationStatus) (*model.Listing, error) {
	filter := bson.D{
		{Key: "_id", Value: listingID},
		{Key: "applications.submissionId", Value: submissionID},
	}
	return findOneAndUpdate[model.Listing](ctx, r.col, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "applications.$.status", Value: status},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// SetResponseRate は返信率を保存する。
func (r *MongoListingRepo) SetResponseRate(ctx context.Context, id string, rate float64) error {
	_, err := r.col.UpdateOne(ctx, byID(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "analytics.responseRate", Value: rate},
	}}})
	if err != nil {
		return fmt.Errorf("failed to set response rate: %w", err)
	}
	return nil
}

// DeactivateExpired は有効期限を過ぎた公開中の募集を非公開にする。
func (r *MongoListingRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.D{
			{Key: "isActive", Value: true},
			{Key: "expirationDate", Value: bson.D{{Key: "$lt", Value: now}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "isActive", Value: false},
			{Key: "updatedAt", Value: now},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired listings: %w", err)
	}
	return res.ModifiedCount, nil
}

// ClearLapsedBoosts はブースト期限を過ぎた募集のブーストを解除する。
func (r *MongoListingRepo) ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.D{
			{Key: "boostStatus", Value: true},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "boostedUntil", Value: nil}},
				bson.D{{Key: "boostedUntil", Value: bson.D{{Key: "$lte", Value: now}}}},
			}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "boostStatus", Value: false},
			{Key: "updatedAt", Value: now},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear lapsed boosts: %w", err)
	}
	return res.ModifiedCount, nil
}

// compile-time interface check
var _ ListingRepository = (*MongoListingRepo)(nil)
