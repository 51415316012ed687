package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestPlatformConnectionGetByUserAndPlatform(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPlatformConnectionRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM platform_connections")).
		WithArgs(int64(42), "linkedin").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "platform", "account_id", "account_name", "access_token", "token_secret", "created_at", "updated_at",
		}).AddRow(1, 42, "linkedin", "abc123", "Ada", "enc-token", "", now, now))

	pc, err := repo.GetByUserAndPlatform(context.Background(), 42, models.PlatformLinkedIn)
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, models.PlatformLinkedIn, pc.Platform)
	assert.Equal(t, "abc123", pc.AccountID)
	assert.Equal(t, "enc-token", pc.AccessToken)
}

func TestPlatformConnectionGetMissingReturnsNil(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPlatformConnectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM platform_connections")).
		WithArgs(int64(42), "twitter").
		WillReturnError(sql.ErrNoRows)

	pc, err := repo.GetByUserAndPlatform(context.Background(), 42, models.PlatformTwitter)
	require.NoError(t, err)
	assert.Nil(t, pc)
}

func TestPlatformConnectionUpsert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPlatformConnectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO platform_connections")).
		WithArgs(int64(7), "twitter", "99", "@ada", "tok", "sec").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	id, err := repo.Upsert(context.Background(), nil, &models.PlatformConnection{
		UserID:      7,
		Platform:    models.PlatformTwitter,
		AccountID:   "99",
		AccountName: "@ada",
		AccessToken: "tok",
		TokenSecret: "sec",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestPublishedPostCreateAndList(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPublishedPostRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO published_posts")).
		WithArgs(int64(7), "twitter", "1789", "job1", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	id, err := repo.Create(context.Background(), &models.PublishedPost{
		UserID:         7,
		Platform:       models.PlatformTwitter,
		PlatformPostID: "1789",
		JobID:          "job1",
		Content:        "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	mock.ExpectQuery(regexp.QuoteMeta("FROM published_posts")).
		WithArgs(int64(7), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "platform", "platform_post_id", "job_id", "content", "created_at"}).
			AddRow(11, 7, "twitter", "1789", "job1", "hello", now).
			AddRow(10, 7, "linkedin", "urn:li:share:1", "", "older", now.Add(-time.Hour)))

	posts, err := repo.ListByUserID(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, models.PlatformLinkedIn, posts[1].Platform)
}
