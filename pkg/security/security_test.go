package security

import (
	"crypto/ed25519"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

func newTestDB(t *testing.T) *storage.DbOperations {
	t.Helper()
	dir, err := os.MkdirTemp("", "datafold-security-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRegistry(t *testing.T) *KeyRegistry {
	t.Helper()
	db := newTestDB(t)
	return NewKeyRegistry(db, DeriveMasterKey("test-passphrase", []byte("0123456789abcdef"), SecurityLevelInteractive))
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := DeriveMasterKey("passphrase", []byte("0123456789abcdef"), SecurityLevelInteractive)
	sealed, err := Seal(key, []byte("hello world"))
	require.NoError(t, err)

	plaintext, err := Open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), plaintext)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key1 := DeriveMasterKey("passphrase-a", []byte("0123456789abcdef"), SecurityLevelInteractive)
	key2 := DeriveMasterKey("passphrase-b", []byte("0123456789abcdef"), SecurityLevelInteractive)

	sealed, err := Seal(key1, []byte("secret"))
	require.NoError(t, err)

	_, err = Open(key2, sealed)
	require.Error(t, err)
}

func TestLoadOrCreateSaltIsStable(t *testing.T) {
	db := newTestDB(t)

	salt1, err := LoadOrCreateSalt(db)
	require.NoError(t, err)
	require.Len(t, salt1, 16)

	salt2, err := LoadOrCreateSalt(db)
	require.NoError(t, err)
	require.Equal(t, salt1, salt2)
}

func TestKeyRegistryRegisterAndGet(t *testing.T) {
	registry := newTestRegistry(t)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, registry.Register("key-1", pub, "owner-1", []string{"write"}, nil))

	meta, err := registry.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, "owner-1", meta.OwnerID)
	require.True(t, meta.HasPermission("write"))
	require.False(t, meta.HasPermission("admin"))
}

func TestKeyRegistryList(t *testing.T) {
	registry := newTestRegistry(t)

	pub1, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, registry.Register("key-1", pub1, "owner-1", []string{"write"}, nil))
	require.NoError(t, registry.Register("key-2", pub2, "owner-2", []string{"read"}, nil))

	all, err := registry.List()
	require.NoError(t, err)
	require.Len(t, all, 2)

	byID := map[string]KeyMetadata{}
	for _, meta := range all {
		byID[meta.PublicKeyID] = meta
	}
	require.Equal(t, "owner-1", byID["key-1"].OwnerID)
	require.Equal(t, "owner-2", byID["key-2"].OwnerID)
}

func TestKeyRegistryGetUnknownIsNotFound(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Get("missing")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrNotFound, kind)
}

func signedMessage(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, keyID string, payload []byte, ts time.Time, nonce string) SignedMessage {
	t.Helper()
	return SignedMessage{
		Payload:     payload,
		Signature:   ed25519.Sign(priv, payload),
		PublicKeyID: keyID,
		Timestamp:   ts,
		Nonce:       nonce,
	}
}

func TestVerifyAcceptsFreshSignedMessage(t *testing.T) {
	registry := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register("key-1", pub, "owner-1", nil, nil))

	v := NewVerifier(registry, registry.db)
	msg := signedMessage(t, pub, priv, "key-1", []byte("payload"), time.Now(), "nonce-1")

	require.NoError(t, v.Verify(msg))
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	registry := newTestRegistry(t)
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register("key-1", pub, "owner-1", nil, nil))

	v := NewVerifier(registry, registry.db)
	msg := signedMessage(t, pub, otherPriv, "key-1", []byte("payload"), time.Now(), "nonce-1")

	err = v.Verify(msg)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrSecurity, kind)
}

// TestVerifyRejectsTimestampOutsideWindow covers spec.md §8's boundary
// behavior: a message signed well outside the acceptance window is
// rejected with a Security(TimestampOutOfWindow) error.
func TestVerifyRejectsTimestampOutsideWindow(t *testing.T) {
	registry := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register("key-1", pub, "owner-1", nil, nil))

	v := NewVerifier(registry, registry.db, WithWindow(5*time.Minute), WithClockSkew(10*time.Second))
	stale := time.Now().Add(-1 * time.Hour)
	msg := signedMessage(t, pub, priv, "key-1", []byte("payload"), stale, "nonce-1")

	err = v.Verify(msg)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrSecurity, kind)
}

// TestVerifyRejectsReusedNonce covers spec.md §8: a (public_key_id, nonce)
// pair reused within the window is rejected as a replay, even though the
// signature and timestamp are both otherwise valid.
func TestVerifyRejectsReusedNonce(t *testing.T) {
	registry := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register("key-1", pub, "owner-1", nil, nil))

	v := NewVerifier(registry, registry.db)
	now := time.Now()
	first := signedMessage(t, pub, priv, "key-1", []byte("payload-1"), now, "nonce-1")
	require.NoError(t, v.Verify(first))

	second := signedMessage(t, pub, priv, "key-1", []byte("payload-2"), now, "nonce-1")
	err = v.Verify(second)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrSecurity, kind)
}

func TestVerifyRejectsExpiredKey(t *testing.T) {
	registry := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, registry.Register("key-1", pub, "owner-1", nil, &expired))

	v := NewVerifier(registry, registry.db)
	msg := signedMessage(t, pub, priv, "key-1", []byte("payload"), time.Now(), "nonce-1")

	err = v.Verify(msg)
	require.Error(t, err)
}
