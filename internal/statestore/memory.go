package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore はプロセス内メモリを使用するStore実装。
// 単一インスタンス構成向け。複数インスタンスで共有する場合はRedisStoreを使用する。
type MemoryStore struct {
	cache *ttlcache.Cache[string, string]
	once  sync.Once
}

// NewMemoryStore はMemoryStoreを生成し、期限切れエントリの自動削除を開始する。
// 不要になったらCloseで自動削除を停止する。
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

// Put は値を保存する。同じキーが存在する場合は値と有効期限を上書きする。
func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

// Take は値を取得して削除する。期限切れのエントリは取得できない。
// 同じキーへの並行呼び出しで値を受け取れるのは1回だけ。
func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	item, ok := s.cache.GetAndDelete(key)
	if !ok || item == nil {
		return "", false, nil
	}
	return item.Value(), true, nil
}

// Len は保持しているエントリ数を返す（期限切れで未削除のものを含む）。
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Sweep は期限切れエントリを削除する。
func (s *MemoryStore) Sweep() {
	s.cache.DeleteExpired()
}

// Close は自動削除を停止する。複数回呼んでも安全。
func (s *MemoryStore) Close() error {
	s.once.Do(s.cache.Stop)
	return nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
