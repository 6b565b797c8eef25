package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/vault"
)

type fixture struct {
	store *storage.Store
	vault *vault.Service
	repo  *repository.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v, err := vault.New(store)
	require.NoError(t, err)
	require.NoError(t, v.Create([]byte("master-password-1!")))

	return &fixture{store: store, vault: v, repo: repository.New(store, v)}
}

func (f *fixture) addEntry(t *testing.T, title, password string, updatedAt int64) int64 {
	t.Helper()
	id, err := f.repo.AddEntryWithTimestamps(&repository.EntrySecrets{
		Entry:    repository.EntrySummary{Title: title},
		Password: password,
	}, updatedAt, updatedAt)
	require.NoError(t, err)
	return id
}

func (f *fixture) newAnalyzer(t *testing.T, enablePwned, allowNetwork bool) *Analyzer {
	t.Helper()
	key, err := f.vault.MasterKeyCopy()
	require.NoError(t, err)
	a := NewAnalyzer(f.store.Path(), key, enablePwned, allowNetwork)
	t.Cleanup(a.Close)
	return a
}

func itemByID(t *testing.T, items []Item, id int64) Item {
	t.Helper()
	for _, item := range items {
		if item.EntryID == id {
			return item
		}
	}
	t.Fatalf("no item with entry id %d", id)
	return Item{}
}

func TestScanClassifiesReuseAndStaleness(t *testing.T) {
	f := newFixture(t)
	old := time.Now().Add(-120 * 24 * time.Hour).Unix()

	idA := f.addEntry(t, "a", "SamePassword!123", old)
	idB := f.addEntry(t, "b", "SamePassword!123", old)
	idC := f.addEntry(t, "c", "Unique-Fresh-Pass-42!", time.Now().Unix())

	items, err := f.newAnalyzer(t, false, false).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, id := range []int64{idA, idB} {
		item := itemByID(t, items, id)
		assert.True(t, item.Reused)
		assert.Equal(t, 2, item.ReuseCount)
		assert.True(t, item.Stale)
		assert.GreaterOrEqual(t, item.DaysSinceUpdate, 120)
	}

	fresh := itemByID(t, items, idC)
	assert.False(t, fresh.Reused)
	assert.False(t, fresh.Stale)
	assert.False(t, fresh.Weak)
}

func TestScanOrderedByUpdatedAtDesc(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, "older", "Some-Pass-One-9!", 1000)
	f.addEntry(t, "newer", "Some-Pass-Two-9!", 2000)

	items, err := f.newAnalyzer(t, false, false).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "newer", items[0].Title)
	assert.Equal(t, "older", items[1].Title)
}

func TestScanFlagsWeakPasswords(t *testing.T) {
	f := newFixture(t)
	weakID := f.addEntry(t, "weak", "123456", time.Now().Unix())

	items, err := f.newAnalyzer(t, false, false).Run(context.Background())
	require.NoError(t, err)

	item := itemByID(t, items, weakID)
	assert.True(t, item.Weak)
	assert.Zero(t, item.Score)
}

func TestScanCorruptedEntry(t *testing.T) {
	f := newFixture(t)
	goodA := f.addEntry(t, "good-a", "SamePassword!123", time.Now().Unix())
	goodB := f.addEntry(t, "good-b", "SamePassword!123", time.Now().Unix())
	corruptID := f.addEntry(t, "bad", "SamePassword!123", time.Now().Unix())

	var blob []byte
	require.NoError(t, f.store.DB().QueryRow(
		`SELECT password_enc FROM password_entries WHERE id = ?`, corruptID).Scan(&blob))
	blob[len(blob)-1] ^= 0x01
	_, err := f.store.DB().Exec(`UPDATE password_entries SET password_enc = ? WHERE id = ?`, blob, corruptID)
	require.NoError(t, err)

	items, err := f.newAnalyzer(t, false, false).Run(context.Background())
	require.NoError(t, err)

	bad := itemByID(t, items, corruptID)
	assert.True(t, bad.Corrupted)
	assert.True(t, bad.Weak)
	assert.Zero(t, bad.Score)
	assert.False(t, bad.Reused, "corrupted entries never join reuse classes")

	// The two intact copies still count each other, not the corrupted row.
	assert.Equal(t, 2, itemByID(t, items, goodA).ReuseCount)
	assert.Equal(t, 2, itemByID(t, items, goodB).ReuseCount)
}

func TestPwnedOfflineCacheHit(t *testing.T) {
	f := newFixture(t)
	id := f.addEntry(t, "breached", "password", time.Now().Unix())

	// Seed the prefix cache with the known sha1("password") range line.
	body := []byte("1E4C9B93F3F0682250B6CF8331B7EE68FD8:3303003\r\nFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF:1\r\n")
	require.NoError(t, storage.PutPwnedPrefix(f.store.DB(), "5BAA6", body, time.Now()))

	items, err := f.newAnalyzer(t, true, false).Run(context.Background())
	require.NoError(t, err)

	item := itemByID(t, items, id)
	assert.True(t, item.PwnedChecked)
	assert.True(t, item.Pwned)
	assert.GreaterOrEqual(t, item.PwnedCount, int64(1))
}

func TestPwnedOfflineCacheMissLeavesUnchecked(t *testing.T) {
	f := newFixture(t)
	id := f.addEntry(t, "unchecked", "password", time.Now().Unix())

	items, err := f.newAnalyzer(t, true, false).Run(context.Background())
	require.NoError(t, err)

	item := itemByID(t, items, id)
	assert.False(t, item.PwnedChecked)
	assert.False(t, item.Pwned)
}

func TestPwnedNetworkFetchPopulatesCache(t *testing.T) {
	f := newFixture(t)
	id := f.addEntry(t, "net", "password", time.Now().Unix())

	var gotPath, gotPadding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPadding = r.Header.Get("Add-Padding")
		w.Write([]byte("1E4C9B93F3F0682250B6CF8331B7EE68FD8:3303003\n"))
	}))
	defer server.Close()

	a := f.newAnalyzer(t, true, true)
	a.rangeURL = server.URL + "/range/"

	items, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/range/5BAA6", gotPath)
	assert.Equal(t, "true", gotPadding)

	item := itemByID(t, items, id)
	assert.True(t, item.Pwned)

	// The fetched body landed in the cache.
	cached, ok, err := storage.GetPwnedPrefix(f.store.DB(), "5BAA6", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(cached), "1E4C9B93F3F0682250B6CF8331B7EE68FD8")
}

func TestPwnedNetworkFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	id := f.addEntry(t, "down", "password", time.Now().Unix())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := f.newAnalyzer(t, true, true)
	a.rangeURL = server.URL + "/range/"

	items, err := a.Run(context.Background())
	require.NoError(t, err)

	item := itemByID(t, items, id)
	assert.False(t, item.PwnedChecked)
	assert.False(t, item.Pwned)
}

func TestProgressExtendsForPrefixPhase(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, "one", "password", time.Now().Unix())
	require.NoError(t, storage.PutPwnedPrefix(f.store.DB(), "5BAA6",
		[]byte("1E4C9B93F3F0682250B6CF8331B7EE68FD8:1\n"), time.Now()))

	a := f.newAnalyzer(t, true, false)
	var totals []int
	a.SetProgress(func(done, total int) { totals = append(totals, total) })

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, totals)
	assert.Equal(t, 1, totals[0], "initial range covers the rows")
	assert.Equal(t, 2, totals[len(totals)-1], "range extends to rows + prefixes")
}

func TestCancelReturnsPartialItems(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, "a", "Pass-One-Example-9!", time.Now().Unix())
	f.addEntry(t, "b", "Pass-Two-Example-9!", time.Now().Unix())

	ctx, cancel := context.WithCancel(context.Background())
	a := f.newAnalyzer(t, false, false)
	a.SetProgress(func(done, total int) {
		if done == 1 {
			cancel()
		}
	})

	items, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1, "cancellation keeps the completed rows")
}

func TestParseRangeBody(t *testing.T) {
	body := []byte("AAAA:10\nbbbb:2\n\nbad-line\nCCCC:xyz\nDDDD: 7 \r\n")
	counts := parseRangeBody(body)
	assert.Equal(t, int64(10), counts["AAAA"])
	assert.Equal(t, int64(2), counts["BBBB"])
	assert.Equal(t, int64(7), counts["DDDD"])
	assert.NotContains(t, counts, "CCCC")
}
