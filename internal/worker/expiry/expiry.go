// Package expiry は公開期限切れの募集とブーストを定期的に整理するジョブを提供する。
// ジョブが更新するのは保存済みのisActiveとboostStatusのみ。
// 一覧の表示対象と並び順は取得時に有効期限とboostedUntilから算出する。
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/roomie/internal/metrics"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = time.Hour

// ListingSweeper は期限切れ処理に必要な募集リポジトリの操作。
type ListingSweeper interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	ClearLapsedBoosts(ctx context.Context, now time.Time) (int64, error)
}

// Result は1回の実行で更新した件数。
type Result struct {
	Expired       int64
	BoostsCleared int64
}

// Job は期限切れの募集を非公開にし、期限切れのブーストを解除するジョブ。
// 何度実行しても結果が変わらない冪等な処理。
type Job struct {
	listings ListingSweeper
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(listings ListingSweeper, collector metrics.MetricsCollector, logger *slog.Logger) *Job {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		listings: listings,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は期限切れ処理を1回実行する。
// 募集の非公開化とブースト解除は独立して実行し、片方が失敗しても他方は実行する。
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := j.now().UTC()
	var res Result
	var errs []error

	expired, err := j.listings.DeactivateExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れ募集の非公開化に失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("期限切れ募集の非公開化に失敗: %w", err))
	} else {
		res.Expired = expired
		j.metrics.RecordListingsExpired(expired)
	}

	cleared, err := j.listings.ClearLapsedBoosts(ctx, now)
	if err != nil {
		j.logger.Error("ブーストの解除に失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("ブーストの解除に失敗: %w", err))
	} else {
		res.BoostsCleared = cleared
		j.metrics.RecordBoostsCleared(cleared)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	j.logger.Info("期限切れ処理が完了しました",
		slog.Int64("expired_count", res.Expired),
		slog.Int64("boosts_cleared", res.BoostsCleared),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// Start は起動直後に1回実行し、以降interval間隔で実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("期限切れ処理ジョブを開始しました", slog.Duration("interval", interval))

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("期限切れ処理ジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("expiry job failed", slog.String("error", err.Error()))
	}
}
