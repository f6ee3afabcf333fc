package instagram

import (
	"context"
	"errors"

	"insta-relay/internal/models"
)

var (
	// ErrNotFound the account does not exist or is not visible to us.
	ErrNotFound = errors.New("instagram: account not found")
	// ErrPrivate the account is private and its feed cannot be read.
	ErrPrivate = errors.New("instagram: account is private")
)

// Client is what the relay needs from Instagram.
type Client interface {
	Profile(ctx context.Context, username string) (*models.Profile, error)
	RecentPosts(ctx context.Context, username string, limit int) ([]models.Post, error)
}
