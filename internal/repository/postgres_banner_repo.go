package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tipflix/internal/model"
)

// PostgresBannerRepo はPostgreSQLを使用したバナーリポジトリ。
type PostgresBannerRepo struct {
	db *sql.DB
}

// NewPostgresBannerRepo はPostgresBannerRepoを生成する。
func NewPostgresBannerRepo(db *sql.DB) *PostgresBannerRepo {
	return &PostgresBannerRepo{db: db}
}

// ListAll は全バナーを登録順に返す。
func (r *PostgresBannerRepo) ListAll(ctx context.Context) ([]model.Banner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, image_url, title, movie_id, created_at
		 FROM banners
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list banners: %w", err)
	}
	defer rows.Close()

	banners := []model.Banner{}
	for rows.Next() {
		var (
			b       model.Banner
			movieID sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.ImageURL, &b.Title, &movieID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan banner: %w", err)
		}
		b.MovieID = movieID.String
		banners = append(banners, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate banners: %w", err)
	}

	return banners, nil
}

// Create はバナーを追加する。MovieIDが空の場合はNULLとして保存する。
func (r *PostgresBannerRepo) Create(ctx context.Context, b *model.Banner) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO banners (id, image_url, title, movie_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.ImageURL, b.Title, emptyToNull(b.MovieID), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create banner: %w", err)
	}
	return nil
}

// Delete はバナーを削除する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresBannerRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM banners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete banner: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("banner %s: %w", id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ BannerRepository = (*PostgresBannerRepo)(nil)
