package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ahmdrz/goinsta/v2"
	"github.com/sirupsen/logrus"

	"insta-relay/internal/config"
	"insta-relay/internal/models"
)

const (
	mediaTypePhoto    = 1
	mediaTypeVideo    = 2
	mediaTypeCarousel = 8
)

// GoinstaClient talks to the Instagram private API through goinsta.
// goinsta keeps per-session state, so calls are serialised.
type GoinstaClient struct {
	mu       sync.Mutex
	api      *goinsta.Instagram
	user     string
	recorder *responseRecorder
}

// NewGoinstaClient imports the session file when it exists, otherwise logs in
// with username/password and exports the session if a file path is configured.
func NewGoinstaClient(cfg *config.InstagramConfig) (*GoinstaClient, error) {
	startTime := time.Now()

	var (
		api *goinsta.Instagram
		err error
	)
	if cfg.SessionFile != "" {
		if _, statErr := os.Stat(cfg.SessionFile); statErr == nil {
			api, err = goinsta.Import(cfg.SessionFile)
			if err != nil {
				logrus.Warnf("Failed to import Instagram session %s, logging in again: %v", cfg.SessionFile, err)
				api = nil
			}
		}
	}

	if api == nil {
		api = goinsta.New(cfg.Username, cfg.Password)
		if err := api.Login(); err != nil {
			return nil, fmt.Errorf("instagram login as %s: %w", cfg.Username, err)
		}
		if cfg.SessionFile != "" {
			if err := api.Export(cfg.SessionFile); err != nil {
				logrus.Warnf("Failed to export Instagram session to %s: %v", cfg.SessionFile, err)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "NewGoinstaClient",
		"user":   api.Account.Username,
		"took":   time.Since(startTime),
	}).Info("Instagram session ready")

	return newGoinstaClient(api, &http.Transport{Proxy: http.ProxyFromEnvironment}), nil
}

func newGoinstaClient(api *goinsta.Instagram, transport http.RoundTripper) *GoinstaClient {
	rec := &responseRecorder{next: transport}
	api.SetHTTPTransport(rec)

	c := &GoinstaClient{api: api, recorder: rec}
	if api.Account != nil {
		c.user = api.Account.Username
	}
	return c
}

// Profile looks up an account by name.
func (c *GoinstaClient) Profile(ctx context.Context, username string) (*models.Profile, error) {
	var profile *models.Profile
	err := c.do(ctx, func() error {
		u, err := c.api.Profiles.ByName(username)
		if err != nil {
			return mapError(err)
		}
		profile = profileFromUser(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RecentPosts returns up to limit posts from the first feed page(s).
func (c *GoinstaClient) RecentPosts(ctx context.Context, username string, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := c.do(ctx, func() error {
		u, err := c.api.Profiles.ByName(username)
		if err != nil {
			return mapError(err)
		}
		if u.IsPrivate {
			return ErrPrivate
		}

		// FeedMedia.Next drops request errors: a failed page looks like
		// the end of the feed unless Error() reports ErrNoMore.
		feed := u.Feed()
		for len(posts) < limit {
			c.recorder.reset()
			if !feed.Next() {
				if errors.Is(feed.Error(), goinsta.ErrNoMore) {
					break
				}
				return fmt.Errorf("instagram feed for %s: %w", username, c.recorder.failure())
			}
			for _, item := range feed.Items {
				posts = append(posts, postFromItem(item))
				if len(posts) == limit {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Close ends the Instagram session.
func (c *GoinstaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api.Logout()
}

// do runs fn under the session lock, giving up when ctx ends first. goinsta
// has no context support, so an abandoned call finishes in the background.
func (c *GoinstaClient) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "user_not_found") {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func profileFromUser(u *goinsta.User) *models.Profile {
	return &models.Profile{
		Username:    u.Username,
		FullName:    u.FullName,
		Biography:   u.Biography,
		ExternalURL: u.ExternalURL,
		PictureURL:  u.ProfilePicURL,
		Followers:   u.FollowerCount,
		Following:   u.FollowingCount,
		MediaCount:  u.MediaCount,
		IsPrivate:   u.IsPrivate,
		IsVerified:  u.IsVerified,
	}
}

func postFromItem(item goinsta.Item) models.Post {
	p := models.Post{
		Code:     item.Code,
		Caption:  item.Caption.Text,
		Likes:    item.Likes,
		Comments: item.CommentCount,
		TakenAt:  time.Unix(item.TakenAt, 0).UTC(),
	}

	switch item.MediaType {
	case mediaTypeVideo:
		p.MediaType = models.MediaVideo
		if len(item.Videos) > 0 {
			p.VideoURL = item.Videos[0].URL
		}
		p.ImageURL = item.Images.GetBest()
	case mediaTypeCarousel:
		p.MediaType = models.MediaCarousel
		if len(item.CarouselMedia) > 0 {
			p.ImageURL = item.CarouselMedia[0].Images.GetBest()
		}
	default:
		p.MediaType = models.MediaPhoto
		p.ImageURL = item.Images.GetBest()
	}
	return p
}
