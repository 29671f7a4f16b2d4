package security

import (
	"crypto/ed25519"
	"time"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// SignedMessage is a signed envelope (spec.md §4.L): payload bytes, an
// Ed25519 signature over them, the signer's registered key id, a
// timestamp, and a nonce unique to this (public_key_id, message) pair.
type SignedMessage struct {
	Payload     []byte
	Signature   []byte
	PublicKeyID string
	Timestamp   time.Time
	Nonce       string
}

// Verifier checks SignedMessages against a KeyRegistry, enforcing a
// timestamp window with clock-skew tolerance and nonce-based replay
// rejection.
type Verifier struct {
	registry *KeyRegistry
	db       *storage.DbOperations

	window     time.Duration
	clockSkew  time.Duration
	nonceTTL   time.Duration
}

// VerifierOption configures a Verifier at construction time.
type VerifierOption func(*Verifier)

// WithWindow overrides the default acceptance window (5 minutes) within
// which a message's timestamp must fall relative to now.
func WithWindow(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.window = d }
}

// WithClockSkew overrides the default clock-skew tolerance (30 seconds)
// applied on either side of the window.
func WithClockSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.clockSkew = d }
}

// NewVerifier creates a Verifier backed by registry for key lookup and db
// for nonce tracking.
func NewVerifier(registry *KeyRegistry, db *storage.DbOperations, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		registry:  registry,
		db:        db,
		window:    5 * time.Minute,
		clockSkew: 30 * time.Second,
		nonceTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks msg's signature, timestamp window, and nonce freshness.
// It records the nonce as used only after every other check passes, so a
// rejected message never consumes the nonce.
func (v *Verifier) Verify(msg SignedMessage) error {
	meta, err := v.registry.Get(msg.PublicKeyID)
	if err != nil {
		return err
	}
	if meta.Expired(time.Now()) {
		return types.NewError(types.ErrSecurity, "public key %s has expired", msg.PublicKeyID)
	}

	if !ed25519.Verify(ed25519.PublicKey(meta.PublicKey), msg.Payload, msg.Signature) {
		return types.NewError(types.ErrSecurity, "signature verification failed")
	}

	now := time.Now()
	earliest := now.Add(-v.window - v.clockSkew)
	latest := now.Add(v.window + v.clockSkew)
	if msg.Timestamp.Before(earliest) || msg.Timestamp.After(latest) {
		return types.NewError(types.ErrSecurity, "TimestampOutOfWindow")
	}

	used, err := v.nonceUsed(msg.PublicKeyID, msg.Nonce)
	if err != nil {
		return err
	}
	if used {
		return types.NewError(types.ErrSecurity, "Replay")
	}

	return v.recordNonce(msg.PublicKeyID, msg.Nonce)
}

func nonceKey(publicKeyID, nonce string) string {
	return publicKeyID + "|" + nonce
}

func (v *Verifier) nonceUsed(publicKeyID, nonce string) (bool, error) {
	var marker time.Time
	found, err := v.db.Get(storage.NamespaceSecurityNonces, nonceKey(publicKeyID, nonce), &marker)
	if err != nil {
		return false, types.WrapError(types.ErrStorage, err, "failed to check nonce")
	}
	if !found {
		return false, nil
	}
	if time.Since(marker) > v.nonceTTL {
		return false, nil
	}
	return true, nil
}

func (v *Verifier) recordNonce(publicKeyID, nonce string) error {
	if err := v.db.Put(storage.NamespaceSecurityNonces, nonceKey(publicKeyID, nonce), time.Now()); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to record nonce")
	}
	return nil
}
