package bus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Journal is the durable fan-out target: events on selected topics are
// appended to a bolt bucket per topic before in-memory delivery. Durable
// subscribers replay buckets on their own schedule; appends are synchronous
// so journaled topics are never dropped.
type Journal struct {
	db     *bolt.DB
	topics map[string]struct{}
}

// OpenJournal opens (or creates) the journal file at path. topics limits
// which topics are persisted; an empty list persists everything.
func OpenJournal(path string, topics []string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	if len(topics) == 0 {
		topics = AllTopics
	}
	set := make(map[string]struct{}, len(topics))

	err = db.Update(func(tx *bolt.Tx) error {
		for _, t := range topics {
			if _, err := tx.CreateBucketIfNotExists([]byte(t)); err != nil {
				return err
			}
			set[t] = struct{}{}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal buckets: %w", err)
	}

	return &Journal{db: db, topics: set}, nil
}

// Append persists ev when its topic is journaled. Keys are the per-topic
// sequence number so bucket iteration yields publish order.
func (j *Journal) Append(ev Event) error {
	if _, ok := j.topics[ev.Topic]; !ok {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ev.Seq)

	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ev.Topic)).Put(key, data)
	})
}

// Replay invokes fn for every journaled event on topic from sequence number
// fromSeq onward, in order.
func (j *Journal) Replay(topic string, fromSeq uint64, fn func(Event) error) error {
	if _, ok := j.topics[topic]; !ok {
		return fmt.Errorf("topic %s is not journaled", topic)
	}

	start := make([]byte, 8)
	binary.BigEndian.PutUint64(start, fromSeq)

	return j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(topic)).Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode journaled event: %w", err)
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}
