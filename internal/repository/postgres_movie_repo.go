package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/tipflix/internal/model"
)

// movieColumns はmoviesテーブルのSELECT対象カラム。scanMovieの順序と一致させること。
const movieColumns = `id, title, description, year, category, genres, thumbnail_url,
	server1, server2, server3, download_480p, download_720p, download_1080p,
	quality, featured, visible, created_at`

// PostgresMovieRepo はPostgreSQLを使用した映画リポジトリ。
type PostgresMovieRepo struct {
	db *sql.DB
}

// NewPostgresMovieRepo はPostgresMovieRepoを生成する。
func NewPostgresMovieRepo(db *sql.DB) *PostgresMovieRepo {
	return &PostgresMovieRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(s rowScanner) (*model.Movie, error) {
	var (
		m                  model.Movie
		genres             pq.StringArray
		d480, d720, d1080 sql.NullString
	)
	err := s.Scan(
		&m.ID, &m.Title, &m.Description, &m.Year, &m.Category, &genres, &m.ThumbnailURL,
		&m.Links.Server1, &m.Links.Server2, &m.Links.Server3, &d480, &d720, &d1080,
		&m.Quality, &m.Featured, &m.Visible, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Genres = []string(genres)
	if m.Genres == nil {
		m.Genres = []string{}
	}
	m.Downloads = model.Downloads{
		P480:  nullStringPtr(d480),
		P720:  nullStringPtr(d720),
		P1080: nullStringPtr(d1080),
	}
	return &m, nil
}

// ListAll は全映画を作成日時の降順で返す。
func (r *PostgresMovieRepo) ListAll(ctx context.Context) ([]model.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	movies := []model.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movies: %w", err)
	}

	return movies, nil
}

// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
func (r *PostgresMovieRepo) FindByID(ctx context.Context, id string) (*model.Movie, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id = $1`,
		id,
	)
	m, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movie: %w", err)
	}
	return m, nil
}

// Create は映画を追加する。
func (r *PostgresMovieRepo) Create(ctx context.Context, m *model.Movie) error {
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (`+movieColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		m.ID, m.Title, m.Description, m.Year, m.Category, pq.StringArray(genres), m.ThumbnailURL,
		m.Links.Server1, m.Links.Server2, m.Links.Server3,
		ptrNullString(m.Downloads.P480), ptrNullString(m.Downloads.P720), ptrNullString(m.Downloads.P1080),
		m.Quality, m.Featured, m.Visible, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create movie: %w", err)
	}
	return nil
}

// Update はパッチで指定されたフィールドのみを更新する。
// 空のパッチはクエリを発行しない。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresMovieRepo) Update(ctx context.Context, id string, patch model.MoviePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	query, args := buildMovieUpdate(id, patch)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update movie: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("movie %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete は映画を削除する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresMovieRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("movie %s: %w", id, ErrNotFound)
	}
	return nil
}

// buildMovieUpdate はパッチから UPDATE 文と引数を組み立てる。
// カラムの順序はMoviePatchのフィールド順で固定。
func buildMovieUpdate(id string, p model.MoviePatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Year != nil {
		set("year", *p.Year)
	}
	if p.Category != nil {
		set("category", *p.Category)
	}
	if p.Genres != nil {
		genres := *p.Genres
		if genres == nil {
			genres = []string{}
		}
		set("genres", pq.StringArray(genres))
	}
	if p.ThumbnailURL != nil {
		set("thumbnail_url", *p.ThumbnailURL)
	}
	if p.Server1 != nil {
		set("server1", *p.Server1)
	}
	if p.Server2 != nil {
		set("server2", *p.Server2)
	}
	if p.Server3 != nil {
		set("server3", *p.Server3)
	}
	if p.Download480 != nil {
		set("download_480p", emptyToNull(*p.Download480))
	}
	if p.Download720 != nil {
		set("download_720p", emptyToNull(*p.Download720))
	}
	if p.Download1080 != nil {
		set("download_1080p", emptyToNull(*p.Download1080))
	}
	if p.Quality != nil {
		set("quality", *p.Quality)
	}
	if p.Featured != nil {
		set("featured", *p.Featured)
	}
	if p.Visible != nil {
		set("visible", *p.Visible)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE movies SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func ptrNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func emptyToNull(s string) sql.NullString {
	return ptrNullString(&s)
}

// compile-time interface check
var _ MovieRepository = (*PostgresMovieRepo)(nil)
