// Package admin は管理ダッシュボードからのカタログ変更操作を提供する。
// 変更はデータベースにのみ書き込み、ローカルのスナップショットは変更通知経由で収束させる。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tipflix/internal/catalog"
	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/repository"
)

// 変更操作の計測ラベル
const (
	OpCreateMovie      = "create_movie"
	OpUpdateMovie      = "update_movie"
	OpToggleVisibility = "toggle_visibility"
	OpToggleFeatured   = "toggle_featured"
	OpDeleteMovie      = "delete_movie"
	OpCreateBanner     = "create_banner"
	OpDeleteBanner     = "delete_banner"
	OpCreateMetadata   = "create_metadata"
	OpDeleteMetadata   = "delete_metadata"

	ResultSuccess = "success"
	ResultError   = "error"
)

// MutationObserver は変更操作の結果を計測するフック。
type MutationObserver interface {
	RecordAdminMutation(operation, result string)
}

// SnapshotSource はカタログスナップショットの取得元。
type SnapshotSource interface {
	Snapshot() catalog.Snapshot
}

// MovieInput は映画作成フォームの入力。
type MovieInput struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Year         string            `json:"year"`
	Category     string            `json:"category"`
	Genres       []string          `json:"genres"`
	ThumbnailURL string            `json:"thumbnail_url"`
	Links        model.StreamLinks `json:"links"`
	Downloads    model.Downloads   `json:"downloads"`
	Quality      string            `json:"quality"`
	Featured     bool              `json:"featured"`
	Visible      *bool             `json:"visible"`
}

// BannerInput はバナー作成フォームの入力。
type BannerInput struct {
	ImageURL string `json:"image_url"`
	Title    string `json:"title"`
	MovieID  string `json:"movie_id"`
}

// Gateway は管理者による変更操作を提供する。認証済みセッションの確認は呼び出し側で行う。
type Gateway struct {
	movies   repository.MovieRepository
	banners  repository.BannerRepository
	metadata repository.MetadataRepository
	snapshot SnapshotSource
	observer MutationObserver
	now      func() time.Time
	newID    func() string
}

// NewGateway はGatewayを生成する。observerはnilでもよい。
func NewGateway(
	movies repository.MovieRepository,
	banners repository.BannerRepository,
	metadata repository.MetadataRepository,
	snapshot SnapshotSource,
	observer MutationObserver,
) *Gateway {
	return &Gateway{
		movies:   movies,
		banners:  banners,
		metadata: metadata,
		snapshot: snapshot,
		observer: observer,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// CreateMovie は映画を作成する。
// カテゴリ未指定の場合は既知の先頭カテゴリを使い、作成日時は現在時刻で打刻する。
func (g *Gateway) CreateMovie(ctx context.Context, in MovieInput) (*model.Movie, error) {
	m := &model.Movie{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Year:         strings.TrimSpace(in.Year),
		Category:     strings.TrimSpace(in.Category),
		Genres:       in.Genres,
		ThumbnailURL: strings.TrimSpace(in.ThumbnailURL),
		Links:        in.Links,
		Downloads:    in.Downloads,
		Quality:      strings.TrimSpace(in.Quality),
		Featured:     in.Featured,
		Visible:      true,
	}
	if in.Visible != nil {
		m.Visible = *in.Visible
	}
	if m.Genres == nil {
		m.Genres = []string{}
	}
	if m.Quality == "" {
		m.Quality = model.QualityHD
	}
	if m.Category == "" {
		if cats := g.snapshot.Snapshot().Categories; len(cats) > 0 {
			m.Category = cats[0].Name
		}
	}

	if err := validateRequired(
		field{"title", m.Title},
		field{"description", m.Description},
		field{"year", m.Year},
		field{"thumbnail_url", m.ThumbnailURL},
		field{"category", m.Category},
	); err != nil {
		return nil, err
	}

	m.ID = g.newID()
	m.CreatedAt = g.now().UnixMilli()

	if err := g.movies.Create(ctx, m); err != nil {
		g.record(OpCreateMovie, ResultError)
		return nil, fmt.Errorf("failed to create movie: %w", err)
	}

	g.record(OpCreateMovie, ResultSuccess)
	slog.Info("movie created", slog.String("movie_id", m.ID))
	return m, nil
}

// UpdateMovie はパッチで指定されたフィールドのみを更新する。
// 必須項目を空文字列で上書きすることはできない。
func (g *Gateway) UpdateMovie(ctx context.Context, id string, patch model.MoviePatch) error {
	for _, f := range []struct {
		name  string
		value **string
	}{
		{"title", &patch.Title},
		{"description", &patch.Description},
		{"year", &patch.Year},
		{"category", &patch.Category},
		{"thumbnail_url", &patch.ThumbnailURL},
	} {
		if *f.value == nil {
			continue
		}
		trimmed := strings.TrimSpace(**f.value)
		if trimmed == "" {
			return model.NewValidationError(f.name, "is required")
		}
		*f.value = &trimmed
	}

	if patch.IsEmpty() {
		existing, err := g.movies.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to find movie: %w", err)
		}
		if existing == nil {
			return model.NewMovieNotFoundError(id)
		}
		return nil
	}

	if err := g.movies.Update(ctx, id, patch); err != nil {
		g.record(OpUpdateMovie, ResultError)
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewMovieNotFoundError(id)
		}
		return fmt.Errorf("failed to update movie: %w", err)
	}

	g.record(OpUpdateMovie, ResultSuccess)
	slog.Info("movie updated", slog.String("movie_id", id))
	return nil
}

// ToggleVisibility は映画の公開状態を反転し、反転後の値を返す。
func (g *Gateway) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	return g.toggle(ctx, id, OpToggleVisibility, func(m *model.Movie, p *model.MoviePatch) bool {
		v := !m.Visible
		p.Visible = &v
		return v
	})
}

// ToggleFeatured は映画の注目作品フラグを反転し、反転後の値を返す。
func (g *Gateway) ToggleFeatured(ctx context.Context, id string) (bool, error) {
	return g.toggle(ctx, id, OpToggleFeatured, func(m *model.Movie, p *model.MoviePatch) bool {
		v := !m.Featured
		p.Featured = &v
		return v
	})
}

func (g *Gateway) toggle(ctx context.Context, id, op string, flip func(*model.Movie, *model.MoviePatch) bool) (bool, error) {
	m, err := g.movies.FindByID(ctx, id)
	if err != nil {
		g.record(op, ResultError)
		return false, fmt.Errorf("failed to find movie: %w", err)
	}
	if m == nil {
		return false, model.NewMovieNotFoundError(id)
	}

	var patch model.MoviePatch
	value := flip(m, &patch)

	if err := g.movies.Update(ctx, id, patch); err != nil {
		g.record(op, ResultError)
		if errors.Is(err, repository.ErrNotFound) {
			return false, model.NewMovieNotFoundError(id)
		}
		return false, fmt.Errorf("failed to update movie: %w", err)
	}

	g.record(op, ResultSuccess)
	slog.Info("movie flag toggled",
		slog.String("movie_id", id),
		slog.String("operation", op),
		slog.Bool("value", value),
	)
	return value, nil
}

// DeleteMovie は映画を削除する。confirmedがfalseの場合はデータベースに触れずにエラーを返す。
func (g *Gateway) DeleteMovie(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return model.NewConfirmationRequiredError()
	}

	if err := g.movies.Delete(ctx, id); err != nil {
		g.record(OpDeleteMovie, ResultError)
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewMovieNotFoundError(id)
		}
		return fmt.Errorf("failed to delete movie: %w", err)
	}

	g.record(OpDeleteMovie, ResultSuccess)
	slog.Info("movie deleted", slog.String("movie_id", id))
	return nil
}

// CreateBanner はバナーを作成する。映画との紐づけは任意。
func (g *Gateway) CreateBanner(ctx context.Context, in BannerInput) (*model.Banner, error) {
	b := &model.Banner{
		ImageURL: strings.TrimSpace(in.ImageURL),
		Title:    strings.TrimSpace(in.Title),
		MovieID:  strings.TrimSpace(in.MovieID),
	}
	if err := validateRequired(field{"image_url", b.ImageURL}, field{"title", b.Title}); err != nil {
		return nil, err
	}

	b.ID = g.newID()
	b.CreatedAt = g.now()

	if err := g.banners.Create(ctx, b); err != nil {
		g.record(OpCreateBanner, ResultError)
		return nil, fmt.Errorf("failed to create banner: %w", err)
	}

	g.record(OpCreateBanner, ResultSuccess)
	slog.Info("banner created", slog.String("banner_id", b.ID))
	return b, nil
}

// DeleteBanner はバナーを削除する。
func (g *Gateway) DeleteBanner(ctx context.Context, id string) error {
	if err := g.banners.Delete(ctx, id); err != nil {
		g.record(OpDeleteBanner, ResultError)
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewBannerNotFoundError(id)
		}
		return fmt.Errorf("failed to delete banner: %w", err)
	}

	g.record(OpDeleteBanner, ResultSuccess)
	slog.Info("banner deleted", slog.String("banner_id", id))
	return nil
}

// CreateMetadata はカテゴリまたはジャンルを作成する。名前の重複は確認しない。
func (g *Gateway) CreateMetadata(ctx context.Context, kind model.MetadataKind, name string) (*model.MetadataItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("name", "is required")
	}

	item := &model.MetadataItem{
		ID:        g.newID(),
		Name:      name,
		CreatedAt: g.now(),
	}
	if err := g.metadata.Create(ctx, kind, item); err != nil {
		g.record(OpCreateMetadata, ResultError)
		return nil, fmt.Errorf("failed to create %s: %w", kind, err)
	}

	g.record(OpCreateMetadata, ResultSuccess)
	slog.Info("metadata created", slog.String("kind", string(kind)), slog.String("id", item.ID))
	return item, nil
}

// DeleteMetadata はカテゴリまたはジャンルを削除する。参照している映画には波及しない。
func (g *Gateway) DeleteMetadata(ctx context.Context, kind model.MetadataKind, id string) error {
	if err := g.metadata.Delete(ctx, kind, id); err != nil {
		g.record(OpDeleteMetadata, ResultError)
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewMetadataNotFoundError(kind, id)
		}
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	g.record(OpDeleteMetadata, ResultSuccess)
	slog.Info("metadata deleted", slog.String("kind", string(kind)), slog.String("id", id))
	return nil
}

func (g *Gateway) record(op, result string) {
	if g.observer != nil {
		g.observer.RecordAdminMutation(op, result)
	}
}

type field struct {
	name  string
	value string
}

// validateRequired は必須項目を順に確認し、最初の欠落をエラーとして返す。
func validateRequired(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return model.NewValidationError(f.name, "is required")
		}
	}
	return nil
}
