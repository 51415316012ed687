package service

import (
	"context"
	"fmt"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type CredentialService interface {
	// Resolve loads usable credentials for every targeted platform.
	Resolve(ctx context.Context, userID int64, targets models.Targets) (models.Credentials, error)
	Connections(ctx context.Context, userID int64) ([]*models.PlatformConnection, error)
	// Connect stores tokens obtained by the external OAuth flow.
	Connect(ctx context.Context, conn *models.PlatformConnection) error
	Disconnect(ctx context.Context, userID int64, platform models.Platform) error
}

type credentialService struct {
	secretKey string
	pc        repository.PlatformConnectionRepository
}

func NewCredentialService(cfg config.Config, pc repository.PlatformConnectionRepository) CredentialService {
	return &credentialService{secretKey: cfg.SecretKey, pc: pc}
}

func (s *credentialService) Resolve(ctx context.Context, userID int64, targets models.Targets) (models.Credentials, error) {
	var creds models.Credentials

	for _, platform := range targets.Platforms() {
		conn, err := s.pc.GetByUserAndPlatform(ctx, userID, platform)
		if err != nil {
			return creds, fmt.Errorf("lookup %s connection: %w", platform, err)
		}
		if conn == nil {
			return creds, fmt.Errorf("%w: %s", apperrors.ErrPlatformNotConnected, platform)
		}

		token, err := s.decrypt(conn.AccessToken)
		if err != nil {
			return creds, fmt.Errorf("%w: %s token unreadable", apperrors.ErrPlatformNotConnected, platform)
		}

		switch platform {
		case models.PlatformTwitter:
			secret, err := s.decrypt(conn.TokenSecret)
			if err != nil {
				return creds, fmt.Errorf("%w: twitter token secret unreadable", apperrors.ErrPlatformNotConnected)
			}
			creds.Twitter = &models.TwitterCredentials{Token: token, TokenSecret: secret}
		case models.PlatformLinkedIn:
			creds.LinkedIn = &models.LinkedInCredentials{AccessToken: token, ActorID: conn.AccountID}
		}

		if !creds.Has(platform) {
			return creds, fmt.Errorf("%w: %s credentials incomplete", apperrors.ErrPlatformNotConnected, platform)
		}
	}

	return creds, nil
}

func (s *credentialService) Connections(ctx context.Context, userID int64) ([]*models.PlatformConnection, error) {
	return s.pc.ListByUserID(ctx, userID)
}

func (s *credentialService) Connect(ctx context.Context, conn *models.PlatformConnection) error {
	var violations []string
	switch conn.Platform {
	case models.PlatformTwitter:
		if conn.TokenSecret == "" {
			violations = append(violations, "twitter connections need a token secret")
		}
	case models.PlatformLinkedIn:
		if conn.AccountID == "" {
			violations = append(violations, "linkedin connections need the member id")
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown platform %q", conn.Platform))
	}
	if conn.AccessToken == "" {
		violations = append(violations, "access token is required")
	}
	if len(violations) > 0 {
		return apperrors.NewValidationError("invalid connection", violations...)
	}

	stored := *conn
	var err error
	if stored.AccessToken, err = s.encrypt(conn.AccessToken); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if stored.TokenSecret, err = s.encrypt(conn.TokenSecret); err != nil {
		return fmt.Errorf("encrypt token secret: %w", err)
	}

	id, err := s.pc.Upsert(ctx, nil, &stored)
	if err != nil {
		return err
	}
	conn.ID = id
	return nil
}

func (s *credentialService) Disconnect(ctx context.Context, userID int64, platform models.Platform) error {
	return s.pc.Remove(ctx, userID, platform)
}

func (s *credentialService) encrypt(value string) (string, error) {
	if s.secretKey == "" || value == "" {
		return value, nil
	}
	return utils.Encrypt([]byte(value), []byte(s.secretKey))
}

// decrypt opens a stored token. Without a secret key tokens are stored as is.
func (s *credentialService) decrypt(value string) (string, error) {
	if s.secretKey == "" || value == "" {
		return value, nil
	}
	return utils.Decrypt(value, []byte(s.secretKey))
}
