package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licsync/licsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestLastSyncTimeInitiallyNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.LastSyncTime(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastSyncTimeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.NoError(t, store.SetLastSyncTime(ctx, want))

	got, err := store.LastSyncTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(want))

	// Overwrite survives.
	later := want.Add(time.Hour)
	require.NoError(t, store.SetLastSyncTime(ctx, later))
	got, err = store.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
}

func TestRefreshDictionaryLowerCases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stats, err := store.RefreshDictionary(ctx, []models.DictionaryRecord{
		models.NewLicenseRecord("JSmith", "LIC1"),
		models.NewLoaRecord("JSmith", "LOA1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Failed)

	var uid, license string
	require.NoError(t, store.db.QueryRow("SELECT uid, license FROM user_licenses").Scan(&uid, &license))
	assert.Equal(t, "jsmith", uid)
	assert.Equal(t, "lic1", license)

	var loa string
	require.NoError(t, store.db.QueryRow("SELECT loa FROM user_loas").Scan(&loa))
	assert.Equal(t, "loa1", loa)
}

func TestRefreshDictionaryReplacesPreviousGeneration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RefreshDictionary(ctx, []models.DictionaryRecord{
		models.NewLicenseRecord("old", "lic1"),
		models.NewLicenseRecord("old", "lic2"),
	})
	require.NoError(t, err)

	_, err = store.RefreshDictionary(ctx, []models.DictionaryRecord{
		models.NewLicenseRecord("new", "lic3"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, store, "user_licenses"))

	var uid string
	require.NoError(t, store.db.QueryRow("SELECT uid FROM user_licenses").Scan(&uid))
	assert.Equal(t, "new", uid)
}

func TestRefreshReferencePartialFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := make([]models.ReferenceRecord, 0, 10)
	for i := 0; i < 9; i++ {
		records = append(records, models.ReferenceRecord{
			License:   "lic" + string(rune('0'+i)),
			Loa:       models.NullToken,
			Eccn:      "3A001",
			Effective: "2024-01-15",
			Expiry:    "2025-12-31",
		})
	}
	// Over-length eccn violates the table constraint.
	records = append(records, models.ReferenceRecord{
		License:   "licbad",
		Loa:       models.NullToken,
		Eccn:      "3A001.a.1.b",
		Effective: "2024-01-15",
		Expiry:    "2025-12-31",
	})

	stats, err := store.RefreshReference(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Inserted)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 9, countRows(t, store, "license_loa_eccn"))
}

func TestRefreshReferenceKeepsDates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RefreshReference(ctx, []models.ReferenceRecord{{
		License:   "LIC1",
		Loa:       "NULL",
		Eccn:      "3A001",
		Effective: "2024-01-15",
		Expiry:    "2025-12-31",
	}})
	require.NoError(t, err)

	var license, loa, eccn, effective, expiry string
	require.NoError(t, store.db.QueryRow(
		"SELECT license, loa, eccn, effective, expiry FROM license_loa_eccn").
		Scan(&license, &loa, &eccn, &effective, &expiry))
	assert.Equal(t, "lic1", license)
	assert.Equal(t, "null", loa)
	assert.Equal(t, "3a001", eccn)
	assert.Equal(t, "2024-01-15", effective)
	assert.Equal(t, "2025-12-31", expiry)
}

func TestCountSanity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RefreshDictionary(ctx, []models.DictionaryRecord{
		models.NewLicenseRecord("alice", "lic1"),
		models.NewLicenseRecord("alice", "lic2"),
		models.NewLoaRecord("alice", "loa1"),
		models.NewLoaRecord("bob", "loa2"),
	})
	require.NoError(t, err)

	_, err = store.RefreshReference(ctx, []models.ReferenceRecord{
		{License: "lic1", Loa: "NULL", Eccn: "3A001", Effective: "2024-01-15", Expiry: "2025-12-31"},
		{License: "NULL", Loa: "loa1", Eccn: "3A002", Effective: "2024-01-15", Expiry: "2025-12-31"},
	})
	require.NoError(t, err)

	counts, err := store.CountSanity(ctx)
	require.NoError(t, err)
	// alice appears in both tables but counts once.
	assert.Equal(t, 2, counts.Users)
	assert.Equal(t, 2, counts.ReferenceRows)
}

func TestRefreshSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)
	_, err = store.RefreshDictionary(ctx, []models.DictionaryRecord{
		models.NewLicenseRecord("alice", "lic1"),
	})
	require.NoError(t, err)
	require.NoError(t, store.SetLastSyncTime(ctx, time.Now().UTC()))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, countRows(t, reopened, "user_licenses"))
	last, err := reopened.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.NotNil(t, last)
}
