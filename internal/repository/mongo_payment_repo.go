package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/roomie/internal/model"
)

// MongoPaymentRepo はMongoDBを使用した決済記録リポジトリ。
type MongoPaymentRepo struct {
	col *mongo.Collection
}

// NewMongoPaymentRepo はMongoPaymentRepoを生成する。
func NewMongoPaymentRepo(db *mongo.Database) *MongoPaymentRepo {
	return &MongoPaymentRepo{col: db.Collection(ColPayments)}
}

// Create は決済記録を作成する。stripePaymentIdの一意インデックスで重複を防ぐ。
func (r *MongoPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.col.InsertOne(ctx, p)
	if err = wrapMongoError(err); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// FindByProviderTransactionID は決済事業者のトランザクションIDで検索する。
func (r *MongoPaymentRepo) FindByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error) {
	return findOne[model.Payment](ctx, r.col, bson.D{{Key: "stripePaymentId", Value: txID}})
}

// FindByUser は指定ユーザーの決済記録を新しい順に返す。
func (r *MongoPaymentRepo) FindByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	return findMany[model.Payment](ctx, r.col, bson.D{{Key: "user", Value: userID}},
		options.Find().SetSort(bson.D{{Key: "paymentDate", Value: -1}}))
}

// compile-time interface check
var _ PaymentRepository = (*MongoPaymentRepo)(nil)
