// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/tipflix/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// MovieRepository は映画コレクション（movies）の永続化インターフェース。
type MovieRepository interface {
	// ListAll は全映画を作成日時の降順で返す。0件の場合は空スライスを返す。
	ListAll(ctx context.Context) ([]model.Movie, error)
	// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Movie, error)
	// Create は映画を追加する。IDとCreatedAtは呼び出し側で設定済みであること。
	Create(ctx context.Context, movie *model.Movie) error
	// Update はパッチで指定されたフィールドのみを更新する。
	Update(ctx context.Context, id string, patch model.MoviePatch) error
	// Delete は映画を削除する。
	Delete(ctx context.Context, id string) error
}

// BannerRepository はバナーコレクション（banners）の永続化インターフェース。
type BannerRepository interface {
	ListAll(ctx context.Context) ([]model.Banner, error)
	Create(ctx context.Context, banner *model.Banner) error
	Delete(ctx context.Context, id string) error
}

// MetadataRepository はカテゴリ・ジャンルの永続化インターフェース。
type MetadataRepository interface {
	// List は指定種別のメタデータを登録順に返す。
	List(ctx context.Context, kind model.MetadataKind) ([]model.MetadataItem, error)
	Create(ctx context.Context, kind model.MetadataKind, item *model.MetadataItem) error
	Delete(ctx context.Context, kind model.MetadataKind, id string) error
}

// AdminUserRepository は管理者ユーザーの永続化インターフェース。
type AdminUserRepository interface {
	// FindByEmail はメールアドレスで管理者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.AdminUser, error)
	// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AdminUser, error)
	// Upsert はメールアドレスをキーに管理者を作成し、既存の場合はパスワードを更新する。
	Upsert(ctx context.Context, user *model.AdminUser) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
