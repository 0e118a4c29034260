package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketFiles = []byte("files")
	bucketMeta  = []byte("meta")
	keyVersion  = []byte("version")
)

// BoltStore keeps the state in a bbolt database, one key per file
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates a bbolt backed store at path
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if meta.Get(keyVersion) == nil {
			return meta.Put(keyVersion, []byte(strconv.Itoa(FormatVersion)))
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load reads every file entry
func (s *BoltStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := State{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyVersion); v != nil {
			version, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("%w: bad version %q", ErrCorruptState, v)
			}
			if version > FormatVersion {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
			}
		}
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorruptState, k, err)
			}
			st[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Save replaces the files bucket in a single transaction
func (s *BoltStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketFiles); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketFiles)
		if err != nil {
			return err
		}
		for key, e := range st {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyVersion, []byte(strconv.Itoa(FormatVersion)))
	})
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
