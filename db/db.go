// Package db persists server-side state in a local BoltDB file. Today
// that is the access tokens clients present to the HTTP transports.
package db

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VDIOps/CitrixMonMCP/global"
	"go.etcd.io/bbolt"
)

const (
	dbFileName = "citrixmon.db"

	bucketAccessTokens = "access_tokens"
	bucketSystem       = "system"

	keySchemaVersion = "schema_version"
	schemaVersion    = "1"

	// tokenPrefixLength is how many leading characters are stored in
	// cleartext so operators can identify a token without the secret.
	tokenPrefixLength = 8
)

// Store is the persistence contract used by the server and the CLI
// token management commands.
type Store interface {
	AddAccessToken(description string) (string, string, error)
	ValidateAccessToken(token string) (bool, string, error)
	DeleteAccessToken(identifier string) error
	ListAccessTokens() ([]AccessTokenMetadata, error)
	Close() error
}

// DB implements Store using BoltDB
type DB struct {
	db      *bbolt.DB
	logger  global.Logger
	dataDir string
	mutex   sync.RWMutex
	closed  bool
}

// Config holds configuration options for the database
type Config struct {
	DataDir string
	Logger  global.Logger
}

// Option defines a configuration option for the database
type Option func(*Config)

// WithDataDir sets the data directory for the database
func WithDataDir(dataDir string) Option {
	return func(c *Config) {
		c.DataDir = dataDir
	}
}

// WithLogger sets the logger for the database
func WithLogger(logger global.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// New opens (creating if necessary) the database
func New(opts ...Option) (Store, error) {
	config := &Config{}
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		return nil, fmt.Errorf("db: logger is required")
	}

	d := &DB{logger: config.Logger}

	if config.DataDir == "" {
		config.DataDir = d.defaultDataDir()
	}
	d.dataDir = config.DataDir

	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return nil, NewStoreError("create_data_dir",
			fmt.Errorf("failed to create data directory %s: %w", d.dataDir, err))
	}

	dbPath := filepath.Join(d.dataDir, dbFileName)
	bdb, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, NewStoreError("open_db",
			fmt.Errorf("failed to open database at %s: %w", dbPath, err))
	}
	d.db = bdb

	if err := d.initializeSchema(); err != nil {
		_ = bdb.Close()
		return nil, NewStoreError("init_schema", err)
	}

	d.logger.Infof("Database initialized at %s", dbPath)
	return d, nil
}

// defaultDataDir prefers the system-wide directory, falling back to the
// user's home directory when it is not writable.
func (d *DB) defaultDataDir() string {
	systemDir := "/opt/citrixmon"
	if isDirectoryWritable(systemDir) {
		return systemDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		d.logger.Warningf("Cannot determine home directory: %v", err)
		return filepath.Join(os.TempDir(), "citrixmon")
	}
	return filepath.Join(homeDir, ".citrixmon")
}

func isDirectoryWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	testFile := filepath.Join(dir, ".writetest")
	if err := os.WriteFile(testFile, []byte("x"), 0644); err != nil {
		return false
	}
	_ = os.Remove(testFile)
	return true
}

// initializeSchema creates the bucket structure
func (d *DB) initializeSchema() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketAccessTokens, bucketSystem} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		system := tx.Bucket([]byte(bucketSystem))
		return system.Put([]byte(keySchemaVersion), []byte(schemaVersion))
	})
}

// Close closes the database
func (d *DB) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed || d.db == nil {
		d.closed = true
		return nil
	}

	err := d.db.Close()
	d.closed = true
	if err != nil {
		return NewStoreError("close_db", err)
	}
	d.logger.Debug("Database closed")
	return nil
}

// checkClosed verifies the database is usable
func (d *DB) checkClosed() error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.closed {
		return ErrStoreClosed
	}
	return nil
}

// hashToken produces the SHA-256 hex digest used as the storage key.
// Only the hash and the short prefix are persisted, never the token.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// newSecretToken generates a 256-bit random token
func newSecretToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", NewStoreError("generate_token",
			fmt.Errorf("failed to read random bytes: %w", err))
	}
	return hex.EncodeToString(buf), nil
}
