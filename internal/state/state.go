// Package state persists registered OAuth clients in a bbolt file so
// they survive restarts. Refresh tokens are deliberately not stored
// here; see the tokens package.
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/txmon-auth/internal/models"
)

const (
	// stateDirPerm is the permission mode for the directory holding the database.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	// Client secret hashes live in it.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	schemaVersion = 1
)

var (
	appBucket         = []byte("app")
	schemaKey         = []byte("schema")
	oauthClientBucket = []byte("oauth_clients")
)

// State wraps a bbolt database for persistent registry state.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. A database written by a newer schema is refused.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		app, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		if v := app.Get(schemaKey); v != nil {
			if got := binary.BigEndian.Uint64(v); got > schemaVersion {
				return fmt.Errorf("state schema %d is newer than supported %d", got, schemaVersion)
			}
		} else {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, schemaVersion)

			if err := app.Put(schemaKey, buf); err != nil {
				return err
			}
		}

		_, err = tx.CreateBucketIfNotExists(oauthClientBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// SaveOAuthClient persists a registered OAuth client, replacing any
// earlier record with the same client_id.
func (s *State) SaveOAuthClient(c models.OAuthClient) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(oauthClientBucket)

		data, err := json.Marshal(c)
		if err != nil {
			return err
		}

		return b.Put([]byte(c.ClientID), data)
	})
}

// AllOAuthClients returns all registered OAuth clients ordered by
// client_id.
func (s *State) AllOAuthClients() ([]models.OAuthClient, error) {
	var clients []models.OAuthClient

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(oauthClientBucket).ForEach(func(k, v []byte) error {
			var c models.OAuthClient
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding client %s: %w", k, err)
			}

			clients = append(clients, c)

			return nil
		})
	})

	return clients, err
}

// OAuthClientCount returns the number of registered OAuth clients.
func (s *State) OAuthClientCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(oauthClientBucket).Stats().KeyN
		return nil
	})

	return count
}
