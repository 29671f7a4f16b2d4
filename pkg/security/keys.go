package security

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/types"
)

// KeyMetadata is the registration record for one Ed25519 public key
// (spec.md §4.L): its owner, the permissions it carries, and an optional
// expiry.
type KeyMetadata struct {
	PublicKeyID string    `json:"public_key_id"`
	PublicKey   []byte    `json:"public_key"`
	OwnerID     string    `json:"owner_id"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Expired reports whether this key's expiry has passed as of now.
func (k KeyMetadata) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// HasPermission reports whether this key's metadata grants permission.
func (k KeyMetadata) HasPermission(permission string) bool {
	for _, p := range k.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// KeyRegistry persists Ed25519 public key registrations, sealed at rest
// under a master key derived via DeriveMasterKey.
type KeyRegistry struct {
	db        *storage.DbOperations
	masterKey []byte
}

// NewKeyRegistry creates a KeyRegistry. masterKey must be 32 bytes (see
// DeriveMasterKey).
func NewKeyRegistry(db *storage.DbOperations, masterKey []byte) *KeyRegistry {
	return &KeyRegistry{db: db, masterKey: masterKey}
}

// Register stores a new public key with its metadata, sealed at rest.
func (r *KeyRegistry) Register(publicKeyID string, publicKey ed25519.PublicKey, ownerID string, permissions []string, expiresAt *time.Time) error {
	meta := KeyMetadata{
		PublicKeyID:  publicKeyID,
		PublicKey:    []byte(publicKey),
		OwnerID:      ownerID,
		Permissions:  permissions,
		ExpiresAt:    expiresAt,
		RegisteredAt: time.Now(),
	}
	plaintext, err := json.Marshal(meta)
	if err != nil {
		return types.WrapError(types.ErrSerialization, err, "failed to marshal key metadata")
	}
	sealed, err := Seal(r.masterKey, plaintext)
	if err != nil {
		return err
	}
	if err := r.db.PutRaw(storage.NamespaceSecurityKeys, publicKeyID, sealed); err != nil {
		return types.WrapError(types.ErrStorage, err, "failed to persist key registration")
	}
	return nil
}

// List returns the metadata for every registered public key, for
// operator inspection (the keys list CLI command).
func (r *KeyRegistry) List() ([]KeyMetadata, error) {
	entries, err := r.db.ScanAll(storage.NamespaceSecurityKeys)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to scan key registrations")
	}
	out := make([]KeyMetadata, 0, len(entries))
	for _, e := range entries {
		plaintext, err := Open(r.masterKey, e.Value)
		if err != nil {
			return nil, err
		}
		var meta KeyMetadata
		if err := json.Unmarshal(plaintext, &meta); err != nil {
			return nil, types.WrapError(types.ErrSerialization, err, "failed to unmarshal key metadata for %s", e.Key)
		}
		out = append(out, meta)
	}
	return out, nil
}

// Get retrieves and unseals the metadata for publicKeyID.
func (r *KeyRegistry) Get(publicKeyID string) (*KeyMetadata, error) {
	sealed, err := r.db.GetRaw(storage.NamespaceSecurityKeys, publicKeyID)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "failed to read key registration")
	}
	if sealed == nil {
		return nil, types.NewError(types.ErrNotFound, "public key %s not registered", publicKeyID)
	}
	plaintext, err := Open(r.masterKey, sealed)
	if err != nil {
		return nil, err
	}
	var meta KeyMetadata
	if err := json.Unmarshal(plaintext, &meta); err != nil {
		return nil, types.WrapError(types.ErrSerialization, err, "failed to unmarshal key metadata")
	}
	return &meta, nil
}
