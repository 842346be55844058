package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/seoresearcher/ranktrack/internal/tracker"
)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestListAutoCheckSites(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "site_name", "site_url", "auto_fetch_enabled",
		"fetch_frequency", "fetch_time", "fetch_day_of_week", "fetch_day_of_month",
	}).
		AddRow("s1", "Example", "https://example.com", true, strPtr("weekly"), intPtr(9), intPtr(1), nil).
		AddRow("s2", "Other", "https://other.jp", true, nil, nil, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM sites").
		WithArgs(true).
		WillReturnRows(rows)

	sites, err := store.ListAutoCheckSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "Example", sites[0].Name)
	require.Equal(t, tracker.FrequencyWeekly, sites[0].CheckSchedule.Frequency)
	require.Equal(t, 9, *sites[0].CheckSchedule.Hour)
	require.Equal(t, 1, *sites[0].CheckSchedule.DayOfWeek)
	// Unset schedule columns stay nil and fall back at evaluation time.
	require.Empty(t, sites[1].CheckSchedule.Frequency)
	require.Nil(t, sites[1].CheckSchedule.Hour)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSiteNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM sites").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "site_name", "site_url", "auto_fetch_enabled",
			"fetch_frequency", "fetch_time", "fetch_day_of_week", "fetch_day_of_month",
		}))

	_, err := store.GetSite(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListKeywords(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "site_id", "keyword", "location", "device"}).
		AddRow("k1", "s1", "seo 対策", strPtr("Tokyo,Japan"), strPtr("mobile")).
		AddRow("k2", "s1", "rank tracker", nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM keywords").
		WithArgs("s1").
		WillReturnRows(rows)

	kws, err := store.ListKeywords(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, kws, 2)
	require.Equal(t, "seo 対策", kws[0].Phrase)
	require.Equal(t, tracker.DeviceMobile, kws[0].Device)
	require.Equal(t, "Tokyo,Japan", kws[0].Location)
	require.Empty(t, kws[1].Location)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRanking(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO rankings").
		WithArgs("k1", intPtr(3), strPtr("https://example.com/page"), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.InsertRanking(context.Background(), tracker.Ranking{
		KeywordID: "k1",
		Rank:      intPtr(3),
		URL:       "https://example.com/page",
		CheckedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRankingNotRanked(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	// Outside the top 100: nil rank, no URL.
	mock.ExpectExec("INSERT INTO rankings").
		WithArgs("k1", (*int)(nil), (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.InsertRanking(context.Background(), tracker.Ranking{KeywordID: "k1", CheckedAt: now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRanking(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{"id", "keyword_id", "rank", "url", "checked_at"}).
		AddRow("r1", "k1", intPtr(5), strPtr("https://example.com/p"), now)

	mock.ExpectQuery("SELECT (.+) FROM rankings").
		WithArgs("k1").
		WillReturnRows(rows)

	r, ok, err := store.LatestRanking(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, *r.Rank)
	require.Equal(t, "https://example.com/p", r.URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRankingAtOrBefore(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM rankings").
		WithArgs("k1", cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id", "keyword_id", "rank", "url", "checked_at"}))

	_, ok, err := store.LatestRankingAtOrBefore(context.Background(), "k1", cutoff)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChatworkSettings(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	last := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"site_id", "room_id", "report_frequency", "report_time",
		"report_day_of_week", "report_day_of_month", "report_period",
		"report_mention_id", "report_mention_name", "message_template", "last_report_at",
	}).AddRow(
		"s1", strPtr("12345"), strPtr("weekly"), intPtr(10),
		intPtr(1), nil, intPtr(7),
		strPtr("678"), strPtr("田中"), nil, &last,
	)

	mock.ExpectQuery("SELECT (.+) FROM chatwork_site_settings").
		WithArgs("s1").
		WillReturnRows(rows)

	settings, ok, err := store.GetChatworkSettings(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "12345", settings.RoomID)
	require.Equal(t, tracker.FrequencyWeekly, settings.Schedule.Frequency)
	require.Equal(t, 7, settings.PeriodDays)
	require.Equal(t, "678", settings.MentionID)
	require.Equal(t, last, *settings.LastReportAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChatworkSettingsMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM chatwork_site_settings").
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{
			"site_id", "room_id", "report_frequency", "report_time",
			"report_day_of_week", "report_day_of_month", "report_period",
			"report_mention_id", "report_mention_name", "message_template", "last_report_at",
		}))

	_, ok, err := store.GetChatworkSettings(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLastReportAt(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE chatwork_site_settings").
		WithArgs(at, "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateLastReportAt(context.Background(), "s1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLastReportAtNoRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE chatwork_site_settings").
		WithArgs(at, "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateLastReportAt(context.Background(), "s1", at)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppSetting(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value FROM app_settings").
		WithArgs("chatwork_api_token").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(strPtr("secret-token")))

	value, ok, err := store.GetAppSetting(context.Background(), "chatwork_api_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret-token", value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppSettingMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value FROM app_settings").
		WithArgs("chatwork_api_token").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	_, ok, err := store.GetAppSetting(context.Background(), "chatwork_api_token")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
