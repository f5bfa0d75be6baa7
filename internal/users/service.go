package users

import (
	"context"
	"strings"

	"github.com/docvault/docvault/backend/go-services/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	avatar, _ := claims["picture"].(string)
	if sub == "" {
		return nil, nil
	}
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	u := &models.User{
		Sub:    sub,
		Email:  email,
		Name:   name,
		Avatar: avatar,
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// FindByEmail is a point lookup in the directory. A missing user yields
// (nil, nil), never an error.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	return s.repo.FindByEmail(ctx, email)
}
