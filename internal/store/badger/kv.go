// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

// Package badger implements the key-value store adapter on BadgerDB.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Compile-time interface check.
var _ store.Adapter = (*KVStore)(nil)

// Key layout: 0x01 | kind:value | 0x00 | name. The identity segment makes
// FindByIdentity a single prefix scan.
const prefixEntry = byte(0x01)

// kvSnapshot is the JSON image of one key-value entry.
type kvSnapshot struct {
	OwnerKind  string `json:"owner_kind"`
	OwnerValue string `json:"owner_value"`
	Name       string `json:"name"`
	Value      []byte `json:"value"`
}

// KVStore adapts the key-value store (BadgerDB). Record ids take the form
// "kind:value/name", with "/" and "\" in the identity value escaped so ids
// stay parseable when the value itself contains a slash. Identity matching
// is a prefix scan over the identity's key range.
type KVStore struct {
	db *badgerdb.DB
}

// NewKVStore opens (or creates) a BadgerDB at dir.
func NewKVStore(dir string) (*KVStore, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "opening badger db: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Name implements store.Adapter.
func (k *KVStore) Name() string { return "kv" }

// Layer implements store.Adapter.
func (k *KVStore) Layer() store.Layer { return store.LayerStructural }

// Close closes the underlying database.
func (k *KVStore) Close() error {
	return k.db.Close()
}

func entryKey(owner store.Identity, name string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixEntry)
	buf.WriteString(owner.String())
	buf.WriteByte(0x00)
	buf.WriteString(name)
	return buf.Bytes()
}

func identityPrefix(owner store.Identity) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixEntry)
	buf.WriteString(owner.String())
	buf.WriteByte(0x00)
	return buf.Bytes()
}

// escapeOwner escapes "\" and "/" in the rendered owner so the separator
// slash in a record id is unambiguous even when the identity value contains
// a slash.
func escapeOwner(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "/", `\/`)
}

func unescapeOwner(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// recordID renders the external record id for a key-value entry.
func recordID(owner store.Identity, name string) string {
	return escapeOwner(owner.String()) + "/" + name
}

// splitRecordID splits a record id at the first unescaped slash and returns
// the unescaped owner ("kind:value") and the entry name.
func splitRecordID(id string) (owner, name string, err error) {
	idx := -1
	for i := 0; i < len(id); i++ {
		if id[i] == '\\' {
			i++
			continue
		}
		if id[i] == '/' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", "", xerr.Errorf(xerr.CodeStoreInvalidInput, "malformed kv record id %q: %w", id, store.ErrInvalidInput)
	}
	return unescapeOwner(id[:idx]), id[idx+1:], nil
}

// keyFromRecordID converts a record id back to its storage key.
func keyFromRecordID(id string) ([]byte, error) {
	owner, name, err := splitRecordID(id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte(prefixEntry)
	buf.WriteString(owner)
	buf.WriteByte(0x00)
	buf.WriteString(name)
	return buf.Bytes(), nil
}

// Set writes one entry for the identity.
func (k *KVStore) Set(ctx context.Context, owner store.Identity, name string, value []byte) error {
	_ = ctx
	err := k.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(entryKey(owner, name), value)
	})
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "setting kv entry %s: %w", recordID(owner, name), err)
	}
	return nil
}

// Get reads one entry for the identity.
func (k *KVStore) Get(ctx context.Context, owner store.Identity, name string) ([]byte, error) {
	_ = ctx
	var value []byte
	err := k.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(entryKey(owner, name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "kv entry %s: %w", recordID(owner, name), store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading kv entry %s: %w", recordID(owner, name), err)
	}
	return value, nil
}

// FindByIdentity implements store.Adapter via a prefix scan.
func (k *KVStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	var refs []store.Reference
	prefix := identityPrefix(identity)

	err := k.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := string(it.Item().Key()[len(prefix):])
			refs = append(refs, store.Reference{Store: k.Name(), RecordID: recordID(identity, name)})
		}
		return nil
	})
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning kv for %s: %w", identity, err)
	}

	return refs, nil
}

// Snapshot implements store.Adapter. The payload is the JSON entry image.
func (k *KVStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	_ = ctx
	key, err := keyFromRecordID(ref.RecordID)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = k.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "kv entry %s: %w", ref.RecordID, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading kv entry %s: %w", ref.RecordID, err)
	}

	owner, name, err := splitRecordID(ref.RecordID)
	if err != nil {
		return nil, err
	}
	kindIdx := strings.Index(owner, ":")
	if kindIdx <= 0 {
		return nil, xerr.Errorf(xerr.CodeStoreInvalidInput, "malformed kv record id %q: %w", ref.RecordID, store.ErrInvalidInput)
	}
	snap := kvSnapshot{
		OwnerKind:  owner[:kindIdx],
		OwnerValue: owner[kindIdx+1:],
		Name:       name,
		Value:      value,
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling kv snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: k.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

// DeleteByID implements store.Adapter. Missing keys are not an error:
// badger's Delete is a no-op for absent keys.
func (k *KVStore) DeleteByID(ctx context.Context, id string) error {
	_ = ctx
	key, err := keyFromRecordID(id)
	if err != nil {
		return err
	}

	err = k.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting kv entry %s: %w", id, err)
	}
	return nil
}

// Restore implements store.Adapter by replaying the entry image.
func (k *KVStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != k.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into kv store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var ks kvSnapshot
	if err := json.Unmarshal(snap.Payload, &ks); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling kv snapshot %s: %w", snap.RecordID, err)
	}

	owner := store.Identity{Kind: store.IdentityKind(ks.OwnerKind), Value: ks.OwnerValue}
	return k.Set(ctx, owner, ks.Name, ks.Value)
}
