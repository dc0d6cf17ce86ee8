package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

type IdentityService struct {
	store IdentityStore
}

func NewIdentityService(store IdentityStore) *IdentityService {
	return &IdentityService{store: store}
}

// Register creates a new identity. Usernames are lowercase and unique.
func (s *IdentityService) Register(ctx context.Context, username, displayName string) (*models.Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	identity := &models.Identity{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: displayName,
		Role:        models.RoleMember,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *IdentityService) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.store.GetIdentity(ctx, id)
}

func (s *IdentityService) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	return s.store.GetIdentityByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}
