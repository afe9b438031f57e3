// store.go - Persistent share-token storage on BadgerDB.
//
// The store needs key-value semantics only: tokens by ID, an owner index,
// and per-token view records. Keys:
//
//	token/<id>          -> Token JSON
//	owner/<addr>/<id>   -> token ID (index entry)
//	view/<id>/<uuid>    -> View JSON

package share

import (
	"encoding/json"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flexanon/internal/faults"
)

// Store persists tokens and views. A zero directory opens an in-memory
// database, which tests and the demo use.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// OpenStore opens (or creates) the token database at dir.
func OpenStore(dir string, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedger, "failed to open token store: %v", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func tokenKey(id string) []byte          { return []byte("token/" + id) }
func ownerKey(addr, id string) []byte    { return []byte("owner/" + addr + "/" + id) }
func ownerPrefix(addr string) []byte     { return []byte("owner/" + addr + "/") }
func viewKey(tokenID, vid string) []byte { return []byte("view/" + tokenID + "/" + vid) }
func viewPrefix(tokenID string) []byte   { return []byte("view/" + tokenID + "/") }

// Put stores a new token and its owner index entry. Fails if the ID exists.
func (s *Store) Put(token *Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return faults.Wrap(faults.ErrValidation, "token not serializable: %v", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(tokenKey(token.TokenID)); err == nil {
			return faults.Wrap(faults.ErrValidation, "token %s already exists", token.TokenID)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(tokenKey(token.TokenID), raw); err != nil {
			return err
		}
		return txn.Set(ownerKey(token.OwnerAddress, token.TokenID), []byte(token.TokenID))
	})
}

// Get loads a token by ID.
func (s *Store) Get(tokenID string) (*Token, error) {
	var token Token
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(tokenID))
		if err == badger.ErrKeyNotFound {
			return faults.Wrap(faults.ErrRecordNotFound, "share token %s not found", tokenID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &token)
		})
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// SetRevoked flips the off-ledger revocation flag. Only the owner may
// revoke; revocation is one-way.
func (s *Store) SetRevoked(tokenID, ownerAddress string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(tokenID))
		if err == badger.ErrKeyNotFound {
			return faults.Wrap(faults.ErrRecordNotFound, "share token %s not found", tokenID)
		}
		if err != nil {
			return err
		}
		var token Token
		if err := item.Value(func(raw []byte) error { return json.Unmarshal(raw, &token) }); err != nil {
			return err
		}
		if token.OwnerAddress != ownerAddress {
			return faults.Wrap(faults.ErrAuthentication, "token %s is not owned by %s", tokenID, ownerAddress)
		}
		token.Revoked = true
		raw, err := json.Marshal(&token)
		if err != nil {
			return err
		}
		return txn.Set(tokenKey(tokenID), raw)
	})
}

// ListByOwner returns all of an owner's tokens, newest first.
func (s *Store) ListByOwner(ownerAddress string) ([]*Token, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := ownerPrefix(ownerAddress)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				ids = append(ids, string(raw))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]*Token, 0, len(ids))
	for _, id := range ids {
		token, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// AddView appends a view record for a token.
func (s *Store) AddView(tokenID, viewerIP, userAgent string) error {
	view := View{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		ViewerIP:  viewerIP,
		UserAgent: userAgent,
		At:        time.Now().UTC(),
	}
	raw, err := json.Marshal(&view)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(viewKey(tokenID, view.ID), raw)
	})
}

// ViewCount returns how many times a token has been resolved.
func (s *Store) ViewCount(tokenID string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := viewPrefix(tokenID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
