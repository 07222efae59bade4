package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/models"
)

// UserService reads accounts provisioned by the identity service.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// FindByID loads an account by identifier.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	return findUserByID(ensureContext(ctx), s.db, id)
}

// FindByEmail loads an account by its normalised e-mail address.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return findUserByEmail(ensureContext(ctx), s.db, email)
}

func findUserByID(ctx context.Context, db *gorm.DB, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

func findUserByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user by email: %w", err)
	}
	return &user, nil
}
