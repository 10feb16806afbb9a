package headsetsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-xr/xrapi"
	"go.uber.org/zap"
)

// ControllerRecord is the connection history of one controller family on one hand.
type ControllerRecord struct {
	Profile     string           `json:"profile"`
	Hand        xrapi.Handedness `json:"hand"`
	LastSource  string           `json:"lastSource"`
	Connections int              `json:"connections"`
	FirstSeenAt time.Time        `json:"firstSeenAt"`
	LastSeenAt  time.Time        `json:"lastSeenAt"`
}

var ErrControllerNotFound = errors.New("controller not found")

// Store persists controller history in badger. It is written from the event bus, never from
// the frame loop.
type Store struct {
	log *zap.Logger
	db  *badger.DB
	now func() time.Time
}

func NewStore(db *badger.DB, log *zap.Logger, now func() time.Time) *Store {
	return &Store{
		log: log,
		db:  db,
		now: now,
	}
}

const controllerPrefix = "xr/controllers/"

func controllerKey(profile string, hand xrapi.Handedness) []byte {
	if profile == "" {
		profile = "unknown"
	}
	return []byte(fmt.Sprintf("%s%s/%s", controllerPrefix, hand, profile))
}

// Consume records connect events until ctx is done.
func (s *Store) Consume(ctx context.Context, ch <-chan EventMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg.Key != xrapi.EventConnected {
				continue
			}
			rec, err := s.Record(msg.Message)
			if err != nil {
				s.log.Error("failed to record controller", zap.Error(err))
				continue
			}
			s.log.Debug("controller recorded",
				zap.String("profile", rec.Profile),
				zap.Stringer("hand", rec.Hand),
				zap.Int("connections", rec.Connections),
				zap.Time("firstSeenAt", rec.FirstSeenAt),
			)
		}
	}
}

func (s *Store) Record(e xrapi.Event) (ControllerRecord, error) {
	var rec ControllerRecord
	hand := e.Device.Hand()
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := controllerKey(e.Profile, hand)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			rec = ControllerRecord{
				Profile: e.Profile,
				Hand:    hand,
			}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal controller: %w", err)
			}
		}
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		rec.LastSource = e.Source
		rec.Connections++
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal controller: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return ControllerRecord{}, fmt.Errorf("failed to record controller: %w", err)
	}
	return rec, nil
}

func (s *Store) Get(profile string, hand xrapi.Handedness) (ControllerRecord, error) {
	var rec ControllerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(controllerKey(profile, hand))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrControllerNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return ControllerRecord{}, fmt.Errorf("failed to get controller: %w", err)
	}
	return rec, nil
}

func (s *Store) List() ([]ControllerRecord, error) {
	var records []ControllerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte(controllerPrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec ControllerRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list controllers: %w", err)
	}
	return records, nil
}
