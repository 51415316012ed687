package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PlatformConnectionRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, pc *models.PlatformConnection) (int64, error)
	GetByUserAndPlatform(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformConnection, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.PlatformConnection, error)
	Remove(ctx context.Context, userID int64, platform models.Platform) error
}

type platformConnectionRepository struct {
	db *sql.DB
}

func NewPlatformConnectionRepository(db *sql.DB) PlatformConnectionRepository {
	return &platformConnectionRepository{db: db}
}

func (r *platformConnectionRepository) Upsert(ctx context.Context, tx *sql.Tx, pc *models.PlatformConnection) (int64, error) {
	query := `
		INSERT INTO platform_connections (
			user_id,
			platform,
			account_id,
			account_name,
			access_token,
			token_secret
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			account_name = EXCLUDED.account_name,
			access_token = EXCLUDED.access_token,
			token_secret = EXCLUDED.token_secret,
			updated_at = NOW()
		RETURNING id
	`

	args := []interface{}{pc.UserID, pc.Platform, pc.AccountID, pc.AccountName, pc.AccessToken, pc.TokenSecret}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert platform connection: %w", err)
	}

	return id, nil
}

func (r *platformConnectionRepository) GetByUserAndPlatform(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformConnection, error) {
	query := `
		SELECT id, user_id, platform, account_id, account_name, access_token, token_secret, created_at, updated_at
		FROM platform_connections
		WHERE user_id = $1 AND platform = $2
	`
	row := r.db.QueryRowContext(ctx, query, userID, platform)

	var pc models.PlatformConnection
	err := row.Scan(&pc.ID, &pc.UserID, &pc.Platform, &pc.AccountID, &pc.AccountName,
		&pc.AccessToken, &pc.TokenSecret, &pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get platform connection: %w", err)
	}

	return &pc, nil
}

func (r *platformConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.PlatformConnection, error) {
	query := `
		SELECT id, user_id, platform, account_id, account_name, created_at, updated_at
		FROM platform_connections
		WHERE user_id = $1
		ORDER BY platform
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list platform connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.PlatformConnection
	for rows.Next() {
		var pc models.PlatformConnection
		if err := rows.Scan(&pc.ID, &pc.UserID, &pc.Platform, &pc.AccountID, &pc.AccountName, &pc.CreatedAt, &pc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan platform connection: %w", err)
		}
		connections = append(connections, &pc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

func (r *platformConnectionRepository) Remove(ctx context.Context, userID int64, platform models.Platform) error {
	query := `DELETE FROM platform_connections WHERE user_id = $1 AND platform = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, platform); err != nil {
		return fmt.Errorf("remove platform connection: %w", err)
	}
	return nil
}
