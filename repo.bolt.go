package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// EventArchiver persists consumed book events and lists them back.
type EventArchiver interface {
	Append(event BookEvent) (uint64, error)
	List(limit int) ([]ArchivedEvent, error)
	Close() error
}

// ArchivedEvent is a book event with its position in the archive.
type ArchivedEvent struct {
	Seq uint64 `json:"seq"`
	BookEvent
}

type boltEventArchive struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *BoltDBConfig) (*bolt.DB, error) {
	db, err := bolt.Open(config.FilePath, 0o600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltEventArchive provides a bolt-based events archive.
func NewBoltEventArchive(logger *zap.Logger, config *BoltDBConfig, client *bolt.DB) EventArchiver {
	return &boltEventArchive{
		logger: logger,
		client: client,
		config: config,
	}
}

// Append stores the event under the next bucket sequence. Keys are big
// endian so the cursor walks events in arrival order.
func (ba *boltEventArchive) Append(event BookEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = ba.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ba.config.BucketName))
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	return seq, err
}

// List returns up to limit most recent events, oldest first.
// A limit lower or equal to zero returns everything.
func (ba *boltEventArchive) List(limit int) ([]ArchivedEvent, error) {
	events := []ArchivedEvent{}
	err := ba.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(ba.config.BucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(events) == limit {
				break
			}
			var ev ArchivedEvent
			if err := json.Unmarshal(v, &ev.BookEvent); err != nil {
				return err
			}
			ev.Seq = binary.BigEndian.Uint64(k)
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Close shuts down the bolt database.
func (ba *boltEventArchive) Close() error {
	return ba.client.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
