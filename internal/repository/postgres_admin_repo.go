package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/tipflix/internal/model"
)

// PostgresAdminUserRepo はPostgreSQLを使用した管理者ユーザーリポジトリ。
type PostgresAdminUserRepo struct {
	db *sql.DB
}

// NewPostgresAdminUserRepo はPostgresAdminUserRepoを生成する。
func NewPostgresAdminUserRepo(db *sql.DB) *PostgresAdminUserRepo {
	return &PostgresAdminUserRepo{db: db}
}

// FindByEmail はメールアドレスで管理者を検索する。見つからない場合はnilを返す。
func (r *PostgresAdminUserRepo) FindByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	return r.findOne(ctx, `SELECT id, email, password_hash, created_at FROM admin_users WHERE email = $1`, email)
}

// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminUserRepo) FindByID(ctx context.Context, id string) (*model.AdminUser, error) {
	return r.findOne(ctx, `SELECT id, email, password_hash, created_at FROM admin_users WHERE id = $1`, id)
}

func (r *PostgresAdminUserRepo) findOne(ctx context.Context, query string, arg string) (*model.AdminUser, error) {
	u := &model.AdminUser{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin user: %w", err)
	}
	return u, nil
}

// Upsert は管理者を作成する。同じメールアドレスが存在する場合はパスワードハッシュのみ更新し、
// 既存のIDをuser.IDへ反映する。
func (r *PostgresAdminUserRepo) Upsert(ctx context.Context, user *model.AdminUser) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO admin_users (id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
		 RETURNING id`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert admin user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AdminUserRepository = (*PostgresAdminUserRepo)(nil)
