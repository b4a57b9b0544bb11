package devbackend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/quill-dev/quill/internal/models"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenRevoked  = errors.New("refresh token revoked")
	// ErrTokenReused means an already exchanged token was presented again.
	// The whole family is revoked when this happens.
	ErrTokenReused = errors.New("refresh token reused")
)

// RefreshStore keeps issued refresh tokens by their hash
type RefreshStore interface {
	Save(ctx context.Context, token *models.RefreshToken) error
	Find(ctx context.Context, hash string) (*models.RefreshToken, error)
	// Consume marks the token as exchanged. A token can be consumed once.
	Consume(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string, now time.Time) error
}

// GormStore keeps refresh tokens in the application database
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, token *models.RefreshToken) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *GormStore) Find(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &token, nil
}

func (s *GormStore) Consume(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	token, err := s.Find(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := checkConsumable(token, now); err != nil {
		return nil, err
	}

	// Conditional update so two concurrent exchanges cannot both win
	result := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND rotated_at IS NULL AND revoked_at IS NULL", token.ID).
		Update("rotated_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTokenReused
	}

	token.RotatedAt = &now
	return token, nil
}

func (s *GormStore) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token family: %w", err)
	}
	return nil
}

// Purge deletes tokens that expired before now
func (s *GormStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func checkConsumable(token *models.RefreshToken, now time.Time) error {
	switch {
	case token.RevokedAt != nil:
		return ErrTokenRevoked
	case token.RotatedAt != nil:
		return ErrTokenReused
	case !now.Before(token.ExpiresAt):
		return ErrTokenExpired
	}
	return nil
}
