// Package classrec persists class status records (the collaborator behind
// markClassLive / markClassEnded).
package classrec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/domain"
)

const keyPrefix = "class:"

type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func key(code domain.RoomID) []byte { return []byte(keyPrefix + string(code)) }

// MarkLive upserts the class record as live. Starting a class that has no
// record yet creates one.
func (s *Store) MarkLive(code domain.RoomID) error {
	return s.setStatus(code, domain.ClassLive, true)
}

// MarkEnded flips an existing record to ended. Ending an unknown class is
// ErrNotFound so the caller can reject the request.
func (s *Store) MarkEnded(code domain.RoomID) error {
	return s.setStatus(code, domain.ClassEnded, false)
}

func (s *Store) setStatus(code domain.RoomID, status domain.ClassStatus, create bool) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(code))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if !create {
				return domain.ErrNotFound
			}
		} else if err != nil {
			return err
		}
		rec := domain.Class{AccessCode: code, Status: status, UpdatedAt: time.Now().UTC()}
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(key(code), data)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil {
		log.Error().Err(err).Str("module", "classrec").Str("code", string(code)).Msg("set status failed")
		return fmt.Errorf("%w: classrec set %s: %v", domain.ErrStorageUnavailable, status, err)
	}
	log.Info().Str("module", "classrec").Str("code", string(code)).Str("status", string(status)).Msg("class status updated")
	return nil
}

func (s *Store) Get(code domain.RoomID) (*domain.Class, error) {
	var rec domain.Class
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(code))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: classrec get: %v", domain.ErrStorageUnavailable, err)
	}
	return &rec, nil
}
