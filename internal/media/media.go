// Package media は募集画像の検証とオブジェクトストレージへの保存を提供する。
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"
)

// MaxImageSize はアップロードできる画像の最大サイズ（5 MiB）。
const MaxImageSize = 5 << 20

var (
	// ErrUnsupportedImageType は許可されていない画像形式を表す。
	ErrUnsupportedImageType = errors.New("media: unsupported image type")
	// ErrImageTooLarge は画像サイズの上限超過を表す。
	ErrImageTooLarge = errors.New("media: image too large")
	// ErrEmptyImage は空の画像を表す。
	ErrEmptyImage = errors.New("media: empty image")
)

// allowedTypes は受け付けるContent-Typeと保存時の拡張子。
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageStore は画像を保存し、公開URLを返すストレージのインターフェース。
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Upload はアップロードされた画像ファイルを表す。
type Upload struct {
	Reader io.Reader
	Size   int64
	// ContentType はクライアントの申告値。保存時は中身から判定した値を使う。
	ContentType string
}

// Validate はサイズと形式を検証し、中身から判定したContent-Typeと
// 先頭を読み戻したReaderを返す。
func Validate(up Upload) (string, io.Reader, error) {
	if up.Size <= 0 {
		return "", nil, ErrEmptyImage
	}
	if up.Size > MaxImageSize {
		return "", nil, fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, up.Size, MaxImageSize)
	}

	br := bufio.NewReaderSize(up.Reader, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, fmt.Errorf("failed to read image header: %w", err)
	}

	detected := http.DetectContentType(head)
	if _, ok := allowedTypes[detected]; !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedImageType, detected)
	}
	return detected, br, nil
}

// ObjectKey は募集画像の保存キーを生成する。
func ObjectKey(ownerID, contentType string) string {
	return path.Join("listings", ownerID, uuid.NewString()+allowedTypes[contentType])
}

// Store は検証済みの画像をストレージに保存し、公開URLを返す。
func Store(ctx context.Context, store ImageStore, ownerID string, up Upload) (string, error) {
	contentType, r, err := Validate(up)
	if err != nil {
		return "", err
	}
	return store.Put(ctx, ObjectKey(ownerID, contentType), io.LimitReader(r, MaxImageSize), up.Size, contentType)
}
