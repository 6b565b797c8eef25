package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

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
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v, err := vault.New(store)
	require.NoError(t, err)
	require.NoError(t, v.Create([]byte("master-password-1!")))

	return &fixture{
		store: store,
		vault: v,
		repo:  repository.New(store, v),
		dir:   dir,
	}
}

func (f *fixture) writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "import.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (f *fixture) runImport(t *testing.T, csvPath string, opts Options) (*Result, error) {
	t.Helper()
	key, err := f.vault.MasterKeyCopy()
	require.NoError(t, err)

	worker := NewWorker(csvPath, f.store.Path(), key, storage.RootGroupID, opts)
	defer worker.Close()
	return worker.Run(context.Background())
}

const basicCSV = "title,username,password,url,category,tags,notes\r\n" +
	"Mail,alice,pw-mail,https://mail.example.com,Work,\"email,primary\",note one\r\n" +
	"Bank,bob,pw-bank,https://www.bank.example.org,Finance,,\r\n" +
	"Local,carol,pw-local,,,,\r\n"

func TestImportInsertsRows(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, basicCSV)

	var ticks []int
	key, err := f.vault.MasterKeyCopy()
	require.NoError(t, err)
	worker := NewWorker(path, f.store.Path(), key, storage.RootGroupID, Options{})
	defer worker.Close()
	worker.SetProgress(func(done, total int) {
		assert.Equal(t, 3, total)
		ticks = append(ticks, done)
	})

	result, err := worker.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Zero(t, result.Updated)
	assert.Zero(t, result.SkippedDup)
	assert.Equal(t, []int{0, 1, 2, 3}, ticks)

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Sealed fields decrypt through the repository.
	for _, item := range items {
		loaded, err := f.repo.LoadEntry(item.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, loaded.Password)
	}
}

func TestImportDedupIdempotence(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, basicCSV)

	first, err := f.runImport(t, path, Options{DuplicatePolicy: PolicySkip})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := f.runImport(t, path, Options{DuplicatePolicy: PolicySkip})
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 3, second.SkippedDup)

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestImportDuplicateKeyUsesHost(t *testing.T) {
	f := newFixture(t)

	// www. prefix and title differences must not defeat host-based dedup.
	path := f.writeCSV(t, "title,username,password,url\r\n"+
		"Bank One,bob,pw1,https://bank.example.org\r\n")
	_, err := f.runImport(t, path, Options{DuplicatePolicy: PolicySkip})
	require.NoError(t, err)

	path = f.writeCSV(t, "title,username,password,url\r\n"+
		"Totally Different,BOB,pw2,https://www.bank.example.org/login\r\n")
	result, err := f.runImport(t, path, Options{DuplicatePolicy: PolicySkip})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedDup)
	assert.Zero(t, result.Inserted)
}

func TestImportUpdatePolicyPreservesUserEdits(t *testing.T) {
	f := newFixture(t)

	seed, err := f.repo.AddEntry(&repository.EntrySecrets{
		Entry: repository.EntrySummary{
			Title:    "Mail",
			Username: "alice",
			URL:      "https://mail.example.com",
			Category: "KeepMe",
		},
		Password: "old-password",
	})
	require.NoError(t, err)

	path := f.writeCSV(t, "title,username,password,url,category,tags\r\n"+
		"Mail,alice,new-password,https://mail.example.com,Clobber,fresh\r\n")
	result, err := f.runImport(t, path, Options{DuplicatePolicy: PolicyUpdate})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Inserted)

	loaded, err := f.repo.LoadEntry(seed)
	require.NoError(t, err)
	assert.Equal(t, "new-password", loaded.Password)
	assert.Equal(t, "KeepMe", loaded.Entry.Category, "non-empty category survives re-import")
	assert.Equal(t, []string{"fresh"}, loaded.Entry.Tags, "tag set is replaced")
}

func TestImportAnywayDuplicates(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, "title,username,password,url\r\n"+
		"Mail,alice,pw,https://mail.example.com\r\n")

	_, err := f.runImport(t, path, Options{DuplicatePolicy: PolicyImportAnyway})
	require.NoError(t, err)
	result, err := f.runImport(t, path, Options{DuplicatePolicy: PolicyImportAnyway})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestImportCreatesGroupPath(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, "title,username,password,url,category\r\n"+
		"Mail,alice,pw,https://mail.example.com,Personal/Email\r\n")

	_, err := f.runImport(t, path, Options{CreateGroupsFromCategoryPath: true})
	require.NoError(t, err)

	groups, err := f.repo.ListGroups()
	require.NoError(t, err)
	require.Len(t, groups, 3, "root + Personal + Email")

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	require.Len(t, items, 1)

	var leaf int64
	for _, g := range groups {
		if g.Name == "Email" {
			leaf = g.ID
		}
	}
	assert.Equal(t, leaf, items[0].GroupID)
}

func TestImportCancelRollsBack(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, basicCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key, err := f.vault.MasterKeyCopy()
	require.NoError(t, err)
	worker := NewWorker(path, f.store.Path(), key, storage.RootGroupID, Options{})
	defer worker.Close()

	_, err = worker.Run(ctx)
	assert.ErrorIs(t, err, ErrCanceled)

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	assert.Empty(t, items, "cancellation must leave no partial import")
}

func TestImportCountsInvalidRows(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, "title,username,password,url\r\n"+
		"NoPw,alice,,https://x.example.com\r\n"+
		",bob,pw,\r\n"+
		"Good,carol,pw,\r\n")

	result, err := f.runImport(t, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, result.SkippedInvalid)
}

func TestImportBadCSVFails(t *testing.T) {
	f := newFixture(t)
	path := f.writeCSV(t, "title,username\r\nfoo,bar\r\n")

	_, err := f.runImport(t, path, Options{})
	require.Error(t, err)

	items, err := f.repo.ListEntries()
	require.NoError(t, err)
	assert.Empty(t, items)
}
