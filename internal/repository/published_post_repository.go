package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PublishedPostRepository interface {
	Create(ctx context.Context, pp *models.PublishedPost) (int64, error)
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.PublishedPost, error)
}

type publishedPostRepository struct {
	db *sql.DB
}

func NewPublishedPostRepository(db *sql.DB) PublishedPostRepository {
	return &publishedPostRepository{db: db}
}

func (r *publishedPostRepository) Create(ctx context.Context, pp *models.PublishedPost) (int64, error) {
	query := `
		INSERT INTO published_posts (user_id, platform, platform_post_id, job_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, pp.UserID, pp.Platform, pp.PlatformPostID, pp.JobID, pp.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create published post: %w", err)
	}

	return id, nil
}

func (r *publishedPostRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.PublishedPost, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, platform, platform_post_id, job_id, content, created_at
		FROM published_posts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.PublishedPost
	for rows.Next() {
		var pp models.PublishedPost
		if err := rows.Scan(&pp.ID, &pp.UserID, &pp.Platform, &pp.PlatformPostID, &pp.JobID, &pp.Content, &pp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan published post: %w", err)
		}
		posts = append(posts, &pp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}
