// Package cache persists built partition trees and keeps loaded ones in memory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("module", "cache")

var ErrNotFound = errors.New("tree not found in store")

// Key identifies a tree by label kind and depth budget
type Key struct {
	Kind     string
	MaxDepth int
}

// Name is the storage name of the tree, e.g. countries_label_tree_6.gob
func (k Key) Name() string {
	return fmt.Sprintf("%s_label_tree_%d.gob", k.Kind, k.MaxDepth)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.MaxDepth)
}

// Store holds encoded trees by name
type Store interface {
	// Load returns ErrNotFound when name was never saved
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// NopStore never finds anything and drops every save
type NopStore struct{}

func (NopStore) Load(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}

func (NopStore) Save(context.Context, string, []byte) error {
	return nil
}

// FileStore keeps one file per tree in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return data, nil
}

// Save writes through a temp file so readers never see a partial tree
func (s *FileStore) Save(_ context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

var treesBucket = []byte("trees")

// BoltStore keeps trees in a bbolt database file
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path. A file bolt cannot open is
// moved aside and a fresh database is created in its place.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	opts := &bolt.Options{Timeout: 2 * time.Second}
	db, err := bolt.Open(path, 0o600, opts)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("failed to open bolt db: %w", err)
		}
		backup := path + ".corrupt." + time.Now().Format("20060102_150405")
		log.WithFields(logrus.Fields{"path": path, "backup": backup, "error": err}).Warn("Recreating unreadable bolt db")
		if err := os.Rename(path, backup); err != nil {
			return nil, fmt.Errorf("failed to move corrupt bolt db: %w", err)
		}
		if db, err = bolt.Open(path, 0o600, opts); err != nil {
			return nil, fmt.Errorf("failed to open bolt db: %w", err)
		}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(treesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(_ context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(treesBucket).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltStore) Save(_ context.Context, name string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(treesBucket).Put([]byte(name), data)
	})
}

// Close closes the database file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// RedisStore shares trees between processes through redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores keys as prefix+name. A zero ttl keeps them forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", name, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+name, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}
