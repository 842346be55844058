package tracker

import (
	"context"
	"time"
)

// SiteStore reads site rows.
type SiteStore interface {
	ListAutoCheckSites(ctx context.Context) ([]Site, error)
	GetSite(ctx context.Context, id string) (Site, error)
}

// KeywordStore reads keyword rows.
type KeywordStore interface {
	ListKeywords(ctx context.Context, siteID string) ([]Keyword, error)
}

// RankingStore persists and reads the ranking time series. "Latest" is
// always decided by checked_at, never by insertion order.
type RankingStore interface {
	InsertRanking(ctx context.Context, r Ranking) error
	LatestRanking(ctx context.Context, keywordID string) (Ranking, bool, error)
	LatestRankingAtOrBefore(ctx context.Context, keywordID string, cutoff time.Time) (Ranking, bool, error)
}

// SettingsStore reads per-site report settings and global app settings.
type SettingsStore interface {
	GetChatworkSettings(ctx context.Context, siteID string) (ChatworkSettings, bool, error)
	UpdateLastReportAt(ctx context.Context, siteID string, at time.Time) error
	GetAppSetting(ctx context.Context, key string) (string, bool, error)
}

// Store bundles all persistence concerns behind one dependency.
type Store interface {
	SiteStore
	KeywordStore
	RankingStore
	SettingsStore
}

// RankClient looks up the organic-result position of a target domain.
type RankClient interface {
	LookupRank(ctx context.Context, req RankRequest) (RankResult, error)
}

// MessageSender delivers one message to a chat room.
type MessageSender interface {
	SendMessage(ctx context.Context, token, roomID, body string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes pipeline events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
