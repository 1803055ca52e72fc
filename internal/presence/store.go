// Package presence persists the connection -> participant mapping in
// BadgerDB. Rows are display metadata only; room membership authority lives
// in the registry.
package presence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/domain"
)

const (
	connPrefix = "presence:conn:"
	userPrefix = "presence:user:"
)

type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func connKey(c domain.ConnID) []byte        { return []byte(connPrefix + string(c)) }
func userKey(u domain.ParticipantID) []byte { return []byte(userPrefix + string(u)) }

// Upsert inserts the record after evicting any row keyed by the same
// connection handle or by the same participant id. A reconnecting
// participant silently supersedes their prior record.
func (s *Store) Upsert(p *domain.Participant) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := evictByConn(txn, p.Conn); err != nil {
			return err
		}
		// Secondary index: participant id -> current connection handle.
		if item, err := txn.Get(userKey(p.ID)); err == nil {
			var stale domain.ConnID
			if err := item.Value(func(val []byte) error {
				stale = domain.ConnID(val)
				return nil
			}); err != nil {
				return err
			}
			if stale != p.Conn {
				if err := txn.Delete(connKey(stale)); err != nil {
					return err
				}
				log.Debug().Str("module", "presence").
					Str("user", string(p.ID)).Str("stale_conn", string(stale)).
					Msg("evicted stale record on rejoin")
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := txn.Set(connKey(p.Conn), data); err != nil {
			return err
		}
		return txn.Set(userKey(p.ID), []byte(p.Conn))
	})
	if err != nil {
		return storageErr("upsert", err)
	}
	return nil
}

func (s *Store) Get(conn domain.ConnID) (*domain.Participant, error) {
	var p domain.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(connKey(conn))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return &p, nil
}

// Rename is a silent no-op when the handle has no record.
func (s *Store) Rename(conn domain.ConnID, name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(connKey(conn))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var p domain.Participant
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return err
		}
		if err := p.SetName(name); err != nil {
			return err
		}
		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		return txn.Set(connKey(conn), data)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNameEmpty) || errors.Is(err, domain.ErrNameTooLong) {
			return err
		}
		return storageErr("rename", err)
	}
	return nil
}

// Remove deletes the record for the handle; idempotent.
func (s *Store) Remove(conn domain.ConnID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return evictByConn(txn, conn)
	})
	if err != nil {
		return storageErr("remove", err)
	}
	return nil
}

// List resolves handles against the store. Handles with no record are
// silently dropped; the result is for user-list broadcasts, not membership.
func (s *Store) List(conns []domain.ConnID) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0, len(conns))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, c := range conns {
			item, err := txn.Get(connKey(c))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var p domain.Participant
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

// evictByConn removes the row for a handle and its user index entry, but
// leaves the index alone when the participant has already rebound to a
// newer connection.
func evictByConn(txn *badger.Txn, conn domain.ConnID) error {
	item, err := txn.Get(connKey(conn))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var p domain.Participant
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return err
	}
	if idx, err := txn.Get(userKey(p.ID)); err == nil {
		var bound domain.ConnID
		if err := idx.Value(func(val []byte) error {
			bound = domain.ConnID(val)
			return nil
		}); err != nil {
			return err
		}
		if bound == conn {
			if err := txn.Delete(userKey(p.ID)); err != nil {
				return err
			}
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return txn.Delete(connKey(conn))
}

func storageErr(op string, err error) error {
	log.Error().Err(err).Str("module", "presence").Str("op", op).Msg("store operation failed")
	return fmt.Errorf("%w: presence %s: %v", domain.ErrStorageUnavailable, op, err)
}
