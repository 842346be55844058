// Package postgres provides the Postgres-backed persistence layer for
// sites, keywords, the ranking time series, and report settings.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements tracker.Store on Postgres.
type Store struct {
	pool querier
	sb   sq.StatementBuilderType
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var siteColumns = []string{
	"id",
	"site_name",
	"site_url",
	"auto_fetch_enabled",
	"fetch_frequency",
	"fetch_time",
	"fetch_day_of_week",
	"fetch_day_of_month",
}

// ListAutoCheckSites returns every site flagged for automatic checks.
func (s *Store) ListAutoCheckSites(ctx context.Context) ([]tracker.Site, error) {
	query, args, err := s.sb.
		Select(siteColumns...).
		From("sites").
		Where(sq.Eq{"auto_fetch_enabled": true}).
		OrderBy("site_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sites query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auto-check sites: %w", err)
	}
	defer rows.Close()

	var sites []tracker.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// GetSite loads one site by ID.
func (s *Store) GetSite(ctx context.Context, id string) (tracker.Site, error) {
	query, args, err := s.sb.
		Select(siteColumns...).
		From("sites").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return tracker.Site{}, fmt.Errorf("build site query: %w", err)
	}
	site, err := scanSite(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.Site{}, fmt.Errorf("site %s not found", id)
		}
		return tracker.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

func scanSite(row pgx.Row) (tracker.Site, error) {
	var (
		site      tracker.Site
		frequency *string
	)
	err := row.Scan(
		&site.ID,
		&site.Name,
		&site.URL,
		&site.AutoCheckEnabled,
		&frequency,
		&site.CheckSchedule.Hour,
		&site.CheckSchedule.DayOfWeek,
		&site.CheckSchedule.DayOfMonth,
	)
	if err != nil {
		return tracker.Site{}, err
	}
	if frequency != nil {
		site.CheckSchedule.Frequency = tracker.Frequency(*frequency)
	}
	return site, nil
}

// ListKeywords returns the keywords tracked for a site.
func (s *Store) ListKeywords(ctx context.Context, siteID string) ([]tracker.Keyword, error) {
	query, args, err := s.sb.
		Select("id", "site_id", "keyword", "location", "device").
		From("keywords").
		Where(sq.Eq{"site_id": siteID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keywords query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []tracker.Keyword
	for rows.Next() {
		var (
			kw       tracker.Keyword
			location *string
			device   *string
		)
		if err := rows.Scan(&kw.ID, &kw.SiteID, &kw.Phrase, &location, &device); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		if location != nil {
			kw.Location = *location
		}
		if device != nil {
			kw.Device = tracker.Device(*device)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return keywords, nil
}

// InsertRanking appends one time-series point for a keyword.
func (s *Store) InsertRanking(ctx context.Context, r tracker.Ranking) error {
	if r.KeywordID == "" {
		return fmt.Errorf("keyword id is required")
	}
	query, args, err := s.sb.
		Insert("rankings").
		Columns("keyword_id", "rank", "url", "checked_at").
		Values(r.KeywordID, r.Rank, nullableString(r.URL), r.CheckedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ranking insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ranking: %w", err)
	}
	return nil
}

// LatestRanking returns the newest point for a keyword by checked_at.
func (s *Store) LatestRanking(ctx context.Context, keywordID string) (tracker.Ranking, bool, error) {
	return s.latestRanking(ctx, sq.Eq{"keyword_id": keywordID})
}

// LatestRankingAtOrBefore returns the newest point checked at or before
// the cutoff, used for report comparison ranks.
func (s *Store) LatestRankingAtOrBefore(ctx context.Context, keywordID string, cutoff time.Time) (tracker.Ranking, bool, error) {
	return s.latestRanking(ctx, sq.And{
		sq.Eq{"keyword_id": keywordID},
		sq.LtOrEq{"checked_at": cutoff},
	})
}

func (s *Store) latestRanking(ctx context.Context, pred sq.Sqlizer) (tracker.Ranking, bool, error) {
	query, args, err := s.sb.
		Select("id", "keyword_id", "rank", "url", "checked_at").
		From("rankings").
		Where(pred).
		OrderBy("checked_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return tracker.Ranking{}, false, fmt.Errorf("build ranking query: %w", err)
	}
	var (
		r   tracker.Ranking
		url *string
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(&r.ID, &r.KeywordID, &r.Rank, &url, &r.CheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.Ranking{}, false, nil
		}
		return tracker.Ranking{}, false, fmt.Errorf("latest ranking: %w", err)
	}
	if url != nil {
		r.URL = *url
	}
	return r, true, nil
}

// GetChatworkSettings loads the per-site report configuration, if any.
func (s *Store) GetChatworkSettings(ctx context.Context, siteID string) (tracker.ChatworkSettings, bool, error) {
	query, args, err := s.sb.
		Select(
			"site_id",
			"room_id",
			"report_frequency",
			"report_time",
			"report_day_of_week",
			"report_day_of_month",
			"report_period",
			"report_mention_id",
			"report_mention_name",
			"message_template",
			"last_report_at",
		).
		From("chatwork_site_settings").
		Where(sq.Eq{"site_id": siteID}).
		ToSql()
	if err != nil {
		return tracker.ChatworkSettings{}, false, fmt.Errorf("build settings query: %w", err)
	}
	var (
		settings    tracker.ChatworkSettings
		roomID      *string
		frequency   *string
		period      *int
		mentionID   *string
		mentionName *string
		template    *string
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&settings.SiteID,
		&roomID,
		&frequency,
		&settings.Schedule.Hour,
		&settings.Schedule.DayOfWeek,
		&settings.Schedule.DayOfMonth,
		&period,
		&mentionID,
		&mentionName,
		&template,
		&settings.LastReportAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.ChatworkSettings{}, false, nil
		}
		return tracker.ChatworkSettings{}, false, fmt.Errorf("get chatwork settings: %w", err)
	}
	if roomID != nil {
		settings.RoomID = *roomID
	}
	if frequency != nil {
		settings.Schedule.Frequency = tracker.Frequency(*frequency)
	}
	if period != nil {
		settings.PeriodDays = *period
	}
	if mentionID != nil {
		settings.MentionID = *mentionID
	}
	if mentionName != nil {
		settings.MentionName = *mentionName
	}
	if template != nil {
		settings.Template = *template
	}
	return settings, true, nil
}

// UpdateLastReportAt records the time the site's report was delivered.
func (s *Store) UpdateLastReportAt(ctx context.Context, siteID string, at time.Time) error {
	query, args, err := s.sb.
		Update("chatwork_site_settings").
		Set("last_report_at", at).
		Where(sq.Eq{"site_id": siteID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build last-report update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update last report time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no chatwork settings for site %s", siteID)
	}
	return nil
}

// GetAppSetting reads one global key/value setting.
func (s *Store) GetAppSetting(ctx context.Context, key string) (string, bool, error) {
	query, args, err := s.sb.
		Select("value").
		From("app_settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build app setting query: %w", err)
	}
	var value *string
	err = s.pool.QueryRow(ctx, query, args...).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get app setting %s: %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
