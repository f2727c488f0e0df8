// Package statestore はOAuthのstateやハンドオフコードなど、
// 一度だけ消費される短命な値を保持するストアを提供する。
package statestore

import (
	"context"
	"time"
)

// Store は有効期限付きのキー・値ストア。
// Takeは取得と削除をアトミックに行うため、同じキーを同時にTakeしても
// 値を受け取れるのは一方だけになる。
type Store interface {
	// Put は値を保存する。同じキーが存在する場合は上書きする。
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Take は値を取得して削除する。存在しないか期限切れの場合はok=falseを返す。
	Take(ctx context.Context, key string) (value string, ok bool, err error)
}
