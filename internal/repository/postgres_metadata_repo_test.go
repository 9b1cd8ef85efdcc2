package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/tipflix/internal/model"
)

func TestPostgresMetadataRepo_List_SelectsTableByKind(t *testing.T) {
	tests := []struct {
		kind  model.MetadataKind
		table string
	}{
		{model.MetadataCategory, "categories"},
		{model.MetadataGenre, "genres"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewPostgresMetadataRepo(db)

			now := time.Now().UTC()
			mock.ExpectQuery("SELECT id, name, created_at FROM " + tt.table + " ORDER BY created_at, id").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
					AddRow("1", "Action", now).
					AddRow("2", "Action", now))

			items, err := repo.List(context.Background(), tt.kind)
			require.NoError(t, err)
			// 重複名はそのまま返す
			assert.Equal(t, []string{"Action", "Action"}, model.Names(items))
		})
	}
}

func TestPostgresMetadataRepo_UnknownKind(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewPostgresMetadataRepo(db)

	_, err := repo.List(context.Background(), model.MetadataKind("tags"))
	assert.Error(t, err)
}

func TestPostgresMetadataRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresMetadataRepo(db)

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO genres \\(id, name, created_at\\)").
		WithArgs("g1", "Drama", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), model.MetadataGenre, &model.MetadataItem{ID: "g1", Name: "Drama", CreatedAt: now})
	require.NoError(t, err)
}

func TestPostgresMetadataRepo_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresMetadataRepo(db)

	mock.ExpectExec("DELETE FROM categories WHERE id = \\$1").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), model.MetadataCategory, "gone")
	assert.True(t, errors.Is(err, ErrNotFound))
}
