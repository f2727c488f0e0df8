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

// MongoSubmissionRepo はMongoDBを使用した応募リポジトリ。
type MongoSubmissionRepo struct {
	submissions *mongo.Collection
	listings    *mongo.Collection
}

// NewMongoSubmissionRepo はMongoSubmissionRepoを生成する。
func NewMongoSubmissionRepo(db *mongo.Database) *MongoSubmissionRepo {
	return &MongoSubmissionRepo{
		submissions: db.Collection(ColSubmissions),
		listings:    db.Collection(ColListings),
	}
}

// CreateForListing は応募を保存し、募集への応募参照の追加と応募数の加算を
// 1回の更新で行う。募集が存在しない場合は保存した応募を削除してエラーを返す。
func (r *MongoSubmissionRepo) CreateForListing(ctx context.Context, s *model.Submission) error {
	if _, err := r.submissions.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("failed to insert submission: %w", wrapMongoError(err))
	}

	res, err := r.listings.UpdateOne(ctx, byID(s.ListingID), bson.D{
		{Key: "$push", Value: bson.D{{Key: "applications", Value: model.ApplicationRef{
			SubmissionID: s.ID,
			Status:       model.ApplicationStatusPending,
		}}}},
		{Key: "$inc", Value: bson.D{{Key: "analytics.applicationCount", Value: 1}}},
	})
	if err == nil && res.MatchedCount == 0 {
		err = fmt.Errorf("listing %s: %w", s.ListingID, ErrNotFound)
	}
	if err != nil {
		if _, delErr := r.submissions.DeleteOne(ctx, byID(s.ID)); delErr != nil {
			return fmt.Errorf("failed to attach submission: %w (rollback: %v)", err, delErr)
		}
		return fmt.Errorf("failed to attach submission: %w", err)
	}
	return nil
}

// FindByID は指定IDの応募を取得する。
func (r *MongoSubmissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	return findOne[model.Submission](ctx, r.submissions, byID(id))
}

// FindByListing は募集への応募を新しい順に返す。
func (r *MongoSubmissionRepo) FindByListing(ctx context.Context, listingID string) ([]*model.Submission, error) {
	return findMany[model.Submission](ctx, r.submissions, bson.D{{Key: "form", Value: listingID}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// FindBySubmitter は指定ユーザーの応募を新しい順に返す。
func (r *MongoSubmissionRepo) FindBySubmitter(ctx context.Context, userID string) ([]*model.Submission, error) {
	return findMany[model.Submission](ctx, r.submissions, bson.D{{Key: "submitterUserId", Value: userID}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// MarkRead は応募を既読にする。
func (r *MongoSubmissionRepo) MarkRead(ctx context.Context, id string) (*model.Submission, error) {
	return findOneAndUpdate[model.Submission](ctx, r.submissions, byID(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "isRead", Value: true},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// compile-time interface check
var _ SubmissionRepository = (*MongoSubmissionRepo)(nil)
