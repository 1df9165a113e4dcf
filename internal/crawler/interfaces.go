package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// PageFetcher fetches one leaderboard page. A page past the end of the
// leaderboard yields an empty slice rather than ErrNotFound.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) ([]hiscore.CategoryRecord, error)
}

// UserFetcher fetches one player's stat sheet. Unknown players yield ErrNotFound.
type UserFetcher interface {
	FetchUser(ctx context.Context, req UserRequest) (*hiscore.PlayerRecord, error)
}

// BlobStore persists run artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher digests run output so consumers can verify archived copies.
type Hasher interface {
	HashReader(r io.Reader) (string, error)
}

// Pauser sleeps between attempts and returns early when ctx ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
