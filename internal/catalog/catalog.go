// Package catalog keeps metadata about finished captures in a small local
// key-value store, so recordings can be listed without opening each container
// file.
package catalog

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const storeFileName = "catalog.db"

var (
	recordingBucketKey = []byte("recordings")

	ErrNotFound = errors.New("recording does not exist")
)

// Recording describes one finished capture file.
type Recording struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	FPS       float64   `json:"fps"`
	Pid       uint32    `json:"pid"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Catalog struct {
	rootDir string
	store   *bbolt.DB
}

// Open opens (or creates) the catalog store inside rootDir.
func Open(rootDir string) (*Catalog, error) {
	store, err := bbolt.Open(filepath.Join(rootDir, storeFileName), 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog store")
	}
	err = store.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordingBucketKey)
		return err
	})
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "init catalog store")
	}
	return &Catalog{rootDir: rootDir, store: store}, nil
}

// Add registers a recording and returns it with its assigned id and creation
// time filled in.
func (c *Catalog) Add(rec Recording) (Recording, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Recording{}, err
	}
	err = c.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordingBucketKey).Put([]byte(rec.ID), payload)
	})
	if err != nil {
		return Recording{}, errors.Wrap(err, "store recording")
	}
	return rec, nil
}

func (c *Catalog) Get(id string) (Recording, error) {
	var rec Recording
	err := c.store.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(recordingBucketKey).Get([]byte(id))
		if payload == nil {
			return ErrNotFound
		}
		return json.Unmarshal(payload, &rec)
	})
	return rec, err
}

// List returns all recordings, oldest first.
func (c *Catalog) List() ([]Recording, error) {
	recs := make([]Recording, 0)
	err := c.store.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordingBucketKey).ForEach(func(_, payload []byte) error {
			var rec Recording
			if err := json.Unmarshal(payload, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

func (c *Catalog) Remove(id string) error {
	return c.store.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(recordingBucketKey)
		if bkt.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return bkt.Delete([]byte(id))
	})
}

func (c *Catalog) Close() error {
	return c.store.Close()
}
