package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tipflix/internal/model"
)

// PostgresMetadataRepo はカテゴリ（categories）とジャンル（genres）を扱うリポジトリ。
// 2つのテーブルは同一スキーマのため、種別からテーブル名を選択して共通のSQLを使う。
type PostgresMetadataRepo struct {
	db *sql.DB
}

// NewPostgresMetadataRepo はPostgresMetadataRepoを生成する。
func NewPostgresMetadataRepo(db *sql.DB) *PostgresMetadataRepo {
	return &PostgresMetadataRepo{db: db}
}

// metadataTable は種別に対応するテーブル名を返す。
// SQLに埋め込むため、値は固定の2つに限定する。
func metadataTable(kind model.MetadataKind) (string, error) {
	switch kind {
	case model.MetadataCategory:
		return "categories", nil
	case model.MetadataGenre:
		return "genres", nil
	default:
		return "", fmt.Errorf("unknown metadata kind: %q", kind)
	}
}

// List は指定種別のメタデータを登録順に返す。
func (r *PostgresMetadataRepo) List(ctx context.Context, kind model.MetadataKind) ([]model.MetadataItem, error) {
	table, err := metadataTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM `+table+` ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	items := []model.MetadataItem{}
	for rows.Next() {
		var it model.MetadataItem
		if err := rows.Scan(&it.ID, &it.Name, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}

	return items, nil
}

// Create はメタデータを追加する。名前の重複は確認しない。
func (r *PostgresMetadataRepo) Create(ctx context.Context, kind model.MetadataKind, item *model.MetadataItem) error {
	table, err := metadataTable(kind)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, name, created_at) VALUES ($1, $2, $3)`,
		item.ID, item.Name, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return nil
}

// Delete はメタデータを削除する。映画側の参照はそのまま残る。
func (r *PostgresMetadataRepo) Delete(ctx context.Context, kind model.MetadataKind, id string) error {
	table, err := metadataTable(kind)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ MetadataRepository = (*PostgresMetadataRepo)(nil)
