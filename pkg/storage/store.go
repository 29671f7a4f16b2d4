// Package storage provides the prefixed, JSON-valued key-value persistence
// namespace that every other DataFold core component builds on (spec.md
// §4.A). It wraps a single embedded bbolt database with one bucket per
// logical namespace and offers a small get/put/delete/scan-prefix façade.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Namespace names one logical tree within the KV store. Each namespace maps
// to its own bbolt bucket so that prefix scans never cross namespaces.
type Namespace string

const (
	NamespaceAtom             Namespace = "atom"
	NamespaceRef              Namespace = "ref"
	NamespaceSchema           Namespace = "schema"
	NamespaceSchemaState      Namespace = "schema_state"
	NamespaceTransform        Namespace = "transform"
	NamespaceTransformMapping Namespace = "transform_mapping"
	NamespaceFieldRef         Namespace = "field_ref"
	NamespaceOrchestrator     Namespace = "orchestrator_queue"
	NamespaceCryptoMeta       Namespace = "crypto_meta"
	NamespaceSecurityKeys     Namespace = "security_keys"
	NamespaceSecurityNonces   Namespace = "security_nonces"
)

// allNamespaces lists every bucket DbOperations ensures exists on open.
var allNamespaces = []Namespace{
	NamespaceAtom,
	NamespaceRef,
	NamespaceSchema,
	NamespaceSchemaState,
	NamespaceTransform,
	NamespaceTransformMapping,
	NamespaceFieldRef,
	NamespaceOrchestrator,
	NamespaceCryptoMeta,
	NamespaceSecurityKeys,
	NamespaceSecurityNonces,
}

// DbOperations is the façade every higher-level store (atom, atomref,
// schema, transform, orchestrator, security) is built on. Values are
// serialized as JSON; writes to a single key are atomic via bbolt's
// transaction, but no operation here spans multiple buckets atomically
// (spec.md §4.A: "not transactional and the design tolerates this").
type DbOperations struct {
	db *bolt.DB
}

// Open creates (or reopens) the bbolt database at <dataDir>/datafold.db and
// ensures every namespace bucket exists.
func Open(dataDir string) (*DbOperations, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "datafold.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, ns := range allNamespaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", ns, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DbOperations{db: db}, nil
}

// Close closes the underlying database.
func (d *DbOperations) Close() error {
	return d.db.Close()
}

// Put serializes value as JSON and stores it under key in ns. It overwrites
// whatever was previously stored at key.
func (d *DbOperations) Put(ns Namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s/%s: %w", ns, key, err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		return b.Put([]byte(key), data)
	})
}

// PutRaw stores pre-serialized bytes under key in ns, bypassing JSON
// marshaling. Used for values that are already encoded (e.g. sealed key
// material).
func (d *DbOperations) PutRaw(ns Namespace, key string, value []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		return b.Put([]byte(key), value)
	})
}

// Get deserializes the JSON value stored under key in ns into out. It
// returns (false, nil) if no value is stored at key.
func (d *DbOperations) Get(ns Namespace, key string, out any) (bool, error) {
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// GetRaw returns the raw bytes stored under key in ns, or nil if absent.
func (d *DbOperations) GetRaw(ns Namespace, key string) ([]byte, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		data := b.Get([]byte(key))
		if data != nil {
			out = append([]byte(nil), data...)
		}
		return nil
	})
	return out, err
}

// Delete removes key from ns. Deleting a key that doesn't exist is a no-op.
func (d *DbOperations) Delete(ns Namespace, key string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		return b.Delete([]byte(key))
	})
}

// ScanEntry is one key/raw-value pair returned by a scan.
type ScanEntry struct {
	Key   string
	Value []byte
}

// ScanPrefix returns every entry in ns whose key starts with prefix, in
// ascending lexicographic key order (bbolt buckets are ordered B+trees, so
// a cursor Seek+Next walk is naturally sorted).
func (d *DbOperations) ScanPrefix(ns Namespace, prefix string) ([]ScanEntry, error) {
	var entries []ScanEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("unknown namespace %s", ns)
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			entries = append(entries, ScanEntry{Key: string(k), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return entries, err
}

// ScanAll returns every entry in ns, in ascending key order.
func (d *DbOperations) ScanAll(ns Namespace) ([]ScanEntry, error) {
	return d.ScanPrefix(ns, "")
}
