package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// コレクション名
const (
	ColUsers       = "users"
	ColListings    = "listings"
	ColSubmissions = "submissions"
	ColPayments    = "payments"
)

// wrapMongoError はMongoDBのエラーをリポジトリのエラーに変換する。
func wrapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// findOne は1件のドキュメントを取得する。
// 見つからない場合はPostgreSQL実装と同様に(nil, nil)を返す。
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D) (*T, error) {
	var result T
	err := col.FindOne(ctx, filter).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return &result, nil
}

// findMany は条件に一致するドキュメントを全件取得する。該当なしの場合は空スライスを返す。
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return decodeAll[T](ctx, cursor)
}

// aggregateMany は集計パイプラインの結果を全件取得する。
func aggregateMany[T any](ctx context.Context, col *mongo.Collection, pipeline mongo.Pipeline) ([]*T, error) {
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return decodeAll[T](ctx, cursor)
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]*T, error) {
	defer cursor.Close(ctx)

	results := []*T{}
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// findOneAndUpdate は1件を更新し、更新後のドキュメントを返す。
// 見つからない場合は(nil, nil)を返す。
func findOneAndUpdate[T any](ctx context.Context, col *mongo.Collection, filter, update bson.D) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var result T
	err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return &result, nil
}

// byID は_idによる検索条件を返す。
func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// EnsureMongoIndexes は全コレクションに必要なインデックスを作成する。
// 既に存在するインデックスは再作成されない。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
		sparse bool
	}

	indexes := []idx{
		// users
		{ColUsers, bson.D{{Key: "email", Value: 1}}, true, false},
		{ColUsers, bson.D{{Key: "googleId", Value: 1}}, true, true},

		// listings
		{ColListings, bson.D{{Key: "isActive", Value: 1}, {Key: "boostStatus", Value: -1}, {Key: "publishDate", Value: -1}}, false, false},
		{ColListings, bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}, false, false},
		{ColListings, bson.D{{Key: "expirationDate", Value: 1}}, false, false},
		{ColListings, bson.D{{Key: "roomDetails.nearbyUniversity", Value: 1}}, false, false},

		// submissions
		{ColSubmissions, bson.D{{Key: "form", Value: 1}, {Key: "createdAt", Value: -1}}, false, false},
		{ColSubmissions, bson.D{{Key: "submitterUserId", Value: 1}, {Key: "createdAt", Value: -1}}, false, false},

		// payments
		{ColPayments, bson.D{{Key: "stripePaymentId", Value: 1}}, true, false},
		{ColPayments, bson.D{{Key: "user", Value: 1}, {Key: "paymentDate", Value: -1}}, false, false},
	}

	for _, ix := range indexes {
		opts := options.Index()
		if ix.unique {
			opts.SetUnique(true)
		}
		if ix.sparse {
			opts.SetSparse(true)
		}
		model := mongo.IndexModel{Keys: ix.keys, Options: opts}
		if _, err := db.Collection(ix.col).Indexes().CreateOne(ctx, model); err != nil {
			return err
		}
	}
	return nil
}
