package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrganizationRepository_Create(t *testing.T) {
	t.Run("inserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrganizationRepository(db, zap.NewNop())
		org := models.NewOrganization("Acme", "acme")

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organizations")).
			WithArgs(org.ID, "Acme", "acme", org.CreatedAt, org.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), org))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate slug", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrganizationRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organizations")).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(context.Background(), models.NewOrganization("Acme", "acme"))
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
	})
}

func TestOrganizationRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrganizationRepository(db, zap.NewNop())
	org := models.NewOrganization("Acme", "acme")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM organizations WHERE slug = $1")).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at", "updated_at"}).
			AddRow(org.ID.String(), org.Name, org.Slug, now, now))

	got, err := repo.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM organizations WHERE id = $1")).
		WithArgs(org.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at", "updated_at"}))

	_, err = repo.GetByID(context.Background(), org.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepository_UpdateDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrganizationRepository(db, zap.NewNop())
	org := models.NewOrganization("Acme", "acme")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE organizations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), org), repositories.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM organizations WHERE id = $1")).
		WithArgs(org.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(context.Background(), org.ID))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrganizationRepository(db, zap.NewNop())
	a := models.NewOrganization("A", "a")
	b := models.NewOrganization("B", "b")

	mock.ExpectQuery(regexp.QuoteMeta("FROM organizations ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at", "updated_at"}).
			AddRow(a.ID.String(), a.Name, a.Slug, a.CreatedAt, a.UpdatedAt).
			AddRow(b.ID.String(), b.Name, b.Slug, b.CreatedAt, b.UpdatedAt))

	orgs, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}
