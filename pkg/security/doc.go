/*
Package security implements DataFold's security core: Ed25519 key
registration, signed-message verification with replay rejection, and
Argon2id/AES-256-GCM protection of key material at rest.

# Architecture

	┌───────────────────────────────────────────────────────┐
	│                   Security Core                       │
	└─────┬─────────────────────┬───────────────────────────┘
	      │                     │
	      ▼                     ▼
	┌─────────────┐      ┌──────────────┐
	│ KeyRegistry │      │   Verifier   │
	│ (Ed25519)   │      │ (signatures, │
	│             │      │  window,     │
	│             │      │  replay)     │
	└─────┬───────┘      └──────┬───────┘
	      │                     │
	      ▼                     ▼
	  Argon2id +           timestamp window
	  AES-256-GCM          + nonce ledger
	  at rest

# Master key

Key material is sealed at rest under a master key derived from an
operator-supplied passphrase via Argon2id:

	masterKey = Argon2id(passphrase, salt, params(level))

params is selected by SecurityLevel (interactive/standard/sensitive),
trading derivation cost against how often the derivation runs — an
interactive CLI invocation tolerates a cheaper derivation than a
long-lived server process deriving once at startup. The salt is not
secret; it is generated once via NewSalt and persisted alongside the
sealed data so the same key can be re-derived later.

# Key registry

KeyRegistry stores one KeyMetadata record per registered Ed25519 public
key: its owner, granted permissions, and optional expiry. Records are
JSON-marshaled, then Seal()ed under the master key before being written
to the security_keys namespace, and Open()ed back on Get.

# Signed message verification

Verifier.Verify checks a SignedMessage in three stages, in order:

  - the Ed25519 signature verifies under the registered key, and the
    key has not expired
  - the message's timestamp falls within a configurable window of now,
    widened by a clock-skew tolerance on either side
  - the (public_key_id, nonce) pair has not been seen before within the
    nonce TTL — a replay of an otherwise-valid message is rejected

The nonce is recorded only after every other check passes, so a
rejected message never consumes it.
*/
package security
