package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/hydirect/internal/rules/repos/history"
)

var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements history.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (history.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Record stores run under the next version and updates the meta bucket.
func (s *boltStore) Record(run history.Run) (uint64, error) {
	var version uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		v, err := runs.NextSequence()
		if err != nil {
			return err
		}
		version = v
		run.Version = v

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encode run %d: %w", v, err)
		}
		if err := runs.Put(u64(v), data); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, u64(v)); err != nil {
			return err
		}
		return meta.Put(keyUpdated, u64(uint64(run.FinishedAt.Unix())))
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *boltStore) Latest() (history.Run, bool, error) {
	var (
		run   history.Run
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket(bucketRuns).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &run)
	})
	return run, found, err
}

func (s *boltStore) List(limit int) ([]history.Run, error) {
	var out []history.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var run history.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("decode run %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, run)
		}
		return nil
	})
	return out, err
}

func (s *boltStore) Stats() history.StoreStats {
	st := history.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRuns); b != nil {
			st.Runs = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// u64 encodes v big-endian so keys sort in version order.
func u64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
