package crosspostdb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"crosspost/internal/social"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "crosspost.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))
	return db
}

func TestLedger(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)
	ctx := t.Context()

	t.Run("FindMissing", func(t *testing.T) {
		got, err := ledger.Find(ctx, "guid-1", social.Twitter)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("StoreThenFind", func(t *testing.T) {
		rec := social.SyndicatedPost{
			Network:      social.Twitter,
			RemoteID:     "1234",
			OriginalGUID: "guid-1",
			OriginalURI:  "https://example.com/posts/1",
		}
		require.NoError(t, ledger.Store(ctx, rec))
		got, err := ledger.Find(ctx, "guid-1", social.Twitter)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "1234", got.RemoteID)
		require.Equal(t, "https://example.com/posts/1", got.OriginalURI)
	})

	t.Run("SameGUIDOtherNetwork", func(t *testing.T) {
		got, err := ledger.Find(ctx, "guid-1", social.Mastodon)
		require.NoError(t, err)
		require.Nil(t, got)
		require.NoError(t, ledger.Store(ctx, social.SyndicatedPost{Network: social.Mastodon, RemoteID: "m-1", OriginalGUID: "guid-1"}))
	})

	t.Run("DuplicateIsNotOverwritten", func(t *testing.T) {
		err := ledger.Store(ctx, social.SyndicatedPost{Network: social.Twitter, RemoteID: "9999", OriginalGUID: "guid-1"})
		require.ErrorIs(t, err, ErrDuplicate)
		got, err := ledger.Find(ctx, "guid-1", social.Twitter)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "1234", got.RemoteID)
	})

	t.Run("List", func(t *testing.T) {
		all, err := ledger.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		only, err := ledger.List(ctx, social.Mastodon, 10)
		require.NoError(t, err)
		require.Len(t, only, 1)
		require.Equal(t, "m-1", only[0].RemoteID)
	})
}

func TestLedgerStorageFault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM syndicated_posts").
		WithArgs("guid-1", "twitter").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec("INSERT INTO syndicated_posts").
		WillReturnError(errors.New("database is locked"))

	ledger := NewLedger(db)
	var se *StorageError
	_, err = ledger.Find(t.Context(), "guid-1", social.Twitter)
	require.ErrorAs(t, err, &se)

	err = ledger.Store(t.Context(), social.SyndicatedPost{Network: social.Twitter, RemoteID: "1", OriginalGUID: "guid-1", CreatedAt: time.Now()})
	require.ErrorAs(t, err, &se)
	require.NotErrorIs(t, err, ErrDuplicate, "backend fault must not be reported as duplicate")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenDB(t *testing.T) {
	db := openTestDB(t)
	tokens := NewTokenDB(db)
	ctx := t.Context()

	_, err := tokens.AccessToken(ctx, social.Twitter)
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, tokens.StoreTokens(ctx, social.Twitter, "access-1", "refresh-1"))
	require.NoError(t, tokens.StoreTokens(ctx, social.Twitter, "access-2", "refresh-2"))

	access, err := tokens.AccessToken(ctx, social.Twitter)
	require.NoError(t, err)
	refresh, err := tokens.RefreshToken(ctx, social.Twitter)
	require.NoError(t, err)
	require.Equal(t, "access-2", access)
	require.Equal(t, "refresh-2", refresh)

	_, err = tokens.AccessToken(ctx, social.Mastodon)
	require.ErrorIs(t, err, ErrTokenNotFound, "tokens must not leak across networks")
}

func TestTokenDBStorageFault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO oauth_tokens").
		WithArgs("twitter", "a", "r").
		WillReturnError(errors.New("readonly database"))

	err = NewTokenDB(db).StoreTokens(t.Context(), social.Twitter, "a", "r")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.NoError(t, mock.ExpectationsWereMet())
}
