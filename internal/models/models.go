package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Role values as the API reports them
const (
	RoleOwner = "OWNER"
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User represents a blog account
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	Role         string    `json:"role" gorm:"not null;default:USER"`
	AvatarURL    string    `json:"avatarUrl"`
	Bio          string    `json:"bio"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// RefreshToken is one issued refresh credential. Only the SHA-256 of the
// token is stored. Tokens rotated from the same login share a FamilyID.
type RefreshToken struct {
	BaseModel
	UserID    string     `gorm:"index;not null"`
	FamilyID  string     `gorm:"index;not null"`
	TokenHash string     `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	RotatedAt *time.Time // set once the token has been exchanged
	RevokedAt *time.Time
}

// Active reports whether the token can still be exchanged at now
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RotatedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Post status values
const (
	PostDraft     = "DRAFT"
	PostPublished = "PUBLISHED"
)

// Post represents a blog post
type Post struct {
	BaseModel
	AuthorID  string    `json:"-" gorm:"index;not null"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content" gorm:"type:text"`
	Status    string    `json:"status" gorm:"not null;default:DRAFT"`
	Tags      []string  `json:"tags" gorm:"serializer:json"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&User{}, &RefreshToken{}, &Post{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
