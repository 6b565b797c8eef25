package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
)

func newTestVault(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v, err := New(store)
	require.NoError(t, err)
	return v, store
}

func pw(s string) []byte {
	// Create/Unlock zero their argument; tests need a fresh buffer each call.
	return []byte(s)
}

func insertSealedEntry(t *testing.T, store *storage.Store, key []byte, title, password string) int64 {
	t.Helper()
	sealed, err := crypto.Seal(key, []byte(password))
	require.NoError(t, err)

	now := time.Now().Unix()
	res, err := store.DB().Exec(
		`INSERT INTO password_entries(group_id, title, password_enc, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?)`,
		storage.RootGroupID, title, sealed, now, now,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func readPasswordEnc(t *testing.T, store *storage.Store, id int64) []byte {
	t.Helper()
	var blob []byte
	require.NoError(t, store.DB().QueryRow(
		`SELECT password_enc FROM password_entries WHERE id = ?`, id,
	).Scan(&blob))
	return blob
}

func TestCreateTransitionsToUnlocked(t *testing.T) {
	v, _ := newTestVault(t)

	assert.False(t, v.IsInitialized())
	assert.False(t, v.IsUnlocked())

	require.NoError(t, v.Create(pw("master-password-1!")))
	assert.True(t, v.IsInitialized())
	assert.True(t, v.IsUnlocked())

	meta := v.Meta()
	require.NotNil(t, meta)
	assert.Len(t, meta.Salt, crypto.SaltLength)
	assert.GreaterOrEqual(t, meta.Iterations, crypto.MinIterations)
	assert.NotEmpty(t, meta.Verifier)
}

func TestCreateRejectsExistingVault(t *testing.T) {
	v, _ := newTestVault(t)

	require.NoError(t, v.Create(pw("master-password-1!")))
	assert.ErrorIs(t, v.Create(pw("another")), ErrAlreadyInitialized)
}

func TestUnlockVerifierGate(t *testing.T) {
	v, store := newTestVault(t)

	require.NoError(t, v.Create(pw("master-password-1!")))
	v.Lock()
	assert.False(t, v.IsUnlocked())

	// Wrong password: stays locked.
	err := v.Unlock(pw("wrong-password"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.False(t, v.IsUnlocked())

	// Right password: unlocked; a fresh service over the same store agrees.
	require.NoError(t, v.Unlock(pw("master-password-1!")))
	assert.True(t, v.IsUnlocked())

	v2, err := New(store)
	require.NoError(t, err)
	assert.True(t, v2.IsInitialized())
	require.NoError(t, v2.Unlock(pw("master-password-1!")))
}

func TestUnlockUninitialized(t *testing.T) {
	v, _ := newTestVault(t)
	assert.ErrorIs(t, v.Unlock(pw("anything")), ErrNotInitialized)
}

func TestLockIsIdempotent(t *testing.T) {
	v, _ := newTestVault(t)

	v.Lock() // no-op while uninitialized

	require.NoError(t, v.Create(pw("master-password-1!")))
	v.Lock()
	v.Lock()
	assert.False(t, v.IsUnlocked())
}

func TestMasterKeyCopyRequiresUnlocked(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Create(pw("master-password-1!")))

	copied, err := v.MasterKeyCopy()
	require.NoError(t, err)
	assert.Equal(t, v.MasterKey(), copied)

	// Mutating the copy must not touch the vault's key.
	copied[0] ^= 0xFF
	assert.NotEqual(t, v.MasterKey(), copied)

	v.Lock()
	_, err = v.MasterKeyCopy()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestChangeMasterResealsEveryEntry(t *testing.T) {
	v, store := newTestVault(t)
	require.NoError(t, v.Create(pw("old-master-password")))

	oldKey := make([]byte, crypto.KeyLength)
	copy(oldKey, v.MasterKey())

	idA := insertSealedEntry(t, store, v.MasterKey(), "a", "secret-a")
	idB := insertSealedEntry(t, store, v.MasterKey(), "b", "secret-b")

	require.NoError(t, v.ChangeMaster(pw("new-master-password")))

	// Every entry decrypts under the new key and none under the old.
	for id, want := range map[int64]string{idA: "secret-a", idB: "secret-b"} {
		blob := readPasswordEnc(t, store, id)

		plain, err := crypto.Open(v.MasterKey(), blob)
		require.NoError(t, err)
		assert.Equal(t, want, string(plain))

		_, err = crypto.Open(oldKey, blob)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)
	}

	// After locking, the new password unlocks and the old one is rejected.
	v.Lock()
	require.NoError(t, v.Unlock(pw("new-master-password")))
	assert.ErrorIs(t, func() error { v.Lock(); return v.Unlock(pw("old-master-password")) }(), ErrAuthenticationFailed)
}

func TestChangeMasterRollsBackOnCorruptEntry(t *testing.T) {
	v, store := newTestVault(t)
	require.NoError(t, v.Create(pw("old-master-password")))

	id := insertSealedEntry(t, store, v.MasterKey(), "a", "secret-a")
	before := readPasswordEnc(t, store, id)

	// Flip a ciphertext byte so the reseal pass fails mid-transaction.
	corrupted := make([]byte, len(before))
	copy(corrupted, before)
	corrupted[len(corrupted)-1] ^= 0x01
	_, err := store.DB().Exec(`UPDATE password_entries SET password_enc = ? WHERE id = ?`, corrupted, id)
	require.NoError(t, err)

	err = v.ChangeMaster(pw("new-master-password"))
	require.Error(t, err)

	// Old key still active in memory and on disk.
	assert.True(t, v.IsUnlocked())
	v.Lock()
	require.NoError(t, v.Unlock(pw("old-master-password")))

	// Meta unchanged: the new password must not unlock.
	v.Lock()
	assert.ErrorIs(t, v.Unlock(pw("new-master-password")), ErrAuthenticationFailed)
}

func TestChangeMasterRequiresUnlocked(t *testing.T) {
	v, _ := newTestVault(t)

	assert.ErrorIs(t, v.ChangeMaster(pw("x")), ErrNotInitialized)

	require.NoError(t, v.Create(pw("master-password-1!")))
	v.Lock()
	assert.ErrorIs(t, v.ChangeMaster(pw("x")), ErrLocked)
}
