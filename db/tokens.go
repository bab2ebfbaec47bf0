package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// AccessTokenMetadata is the persisted record for one access token.
// The token itself is never stored; Hash is its SHA-256 digest and
// Prefix the first few characters for operator identification.
type AccessTokenMetadata struct {
	Hash        string    `json:"hash"`
	Prefix      string    `json:"prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}

// AddAccessToken generates a new token, stores its metadata, and
// returns the cleartext token (shown once) along with its hash.
func (d *DB) AddAccessToken(description string) (string, string, error) {
	if err := d.checkClosed(); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(description) == "" {
		return "", "", fmt.Errorf("description is required")
	}

	token, err := newSecretToken()
	if err != nil {
		return "", "", err
	}

	hash := hashToken(token)
	now := time.Now()
	metadata := &AccessTokenMetadata{
		Hash:        hash,
		Prefix:      token[:tokenPrefixLength],
		Description: description,
		CreatedAt:   now,
		LastUsed:    now,
	}

	err = d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketAccessTokens))
		if bucket == nil {
			return NewStoreError("add_token", fmt.Errorf("token bucket not found"))
		}
		if bucket.Get([]byte(hash)) != nil {
			return NewStoreError("add_token", fmt.Errorf("token already exists"))
		}
		data, err := json.Marshal(metadata)
		if err != nil {
			return NewStoreError("add_token", fmt.Errorf("failed to marshal metadata: %w", err))
		}
		return bucket.Put([]byte(hash), data)
	})
	if err != nil {
		return "", "", err
	}

	d.logger.Infof("Created access token %s... (%s)", metadata.Prefix, description)
	return token, hash, nil
}

// ValidateAccessToken checks a presented token and returns its hash.
// A miss is not an error; the caller decides how to respond.
func (d *DB) ValidateAccessToken(token string) (bool, string, error) {
	if err := d.checkClosed(); err != nil {
		return false, "", err
	}
	if token == "" {
		return false, "", nil
	}

	hash := hashToken(token)
	var found bool

	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketAccessTokens))
		if bucket == nil {
			return NewStoreError("validate_token", fmt.Errorf("token bucket not found"))
		}
		found = bucket.Get([]byte(hash)) != nil
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if !found {
		return false, "", nil
	}

	d.touchToken(hash)
	return true, hash, nil
}

// touchToken updates the last-used timestamp without blocking the
// request path.
func (d *DB) touchToken(hash string) {
	go func() {
		err := d.db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket([]byte(bucketAccessTokens))
			if bucket == nil {
				return fmt.Errorf("token bucket not found")
			}
			data := bucket.Get([]byte(hash))
			if data == nil {
				return ErrTokenNotFound
			}
			var metadata AccessTokenMetadata
			if err := json.Unmarshal(data, &metadata); err != nil {
				return err
			}
			metadata.LastUsed = time.Now()
			updated, err := json.Marshal(&metadata)
			if err != nil {
				return err
			}
			return bucket.Put([]byte(hash), updated)
		})
		if err != nil {
			d.logger.Warningf("Failed to update token last-used timestamp: %v", err)
		}
	}()
}

// DeleteAccessToken removes a token by full hash or unique prefix
func (d *DB) DeleteAccessToken(identifier string) error {
	if err := d.checkClosed(); err != nil {
		return err
	}
	if identifier == "" {
		return fmt.Errorf("identifier is required")
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketAccessTokens))
		if bucket == nil {
			return NewStoreError("delete_token", fmt.Errorf("token bucket not found"))
		}

		// Exact hash match first
		if bucket.Get([]byte(identifier)) != nil {
			return bucket.Delete([]byte(identifier))
		}

		// Otherwise match by stored prefix, requiring uniqueness
		var matches [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var metadata AccessTokenMetadata
			if err := json.Unmarshal(v, &metadata); err != nil {
				return nil
			}
			if strings.HasPrefix(metadata.Prefix, identifier) || strings.HasPrefix(metadata.Hash, identifier) {
				matches = append(matches, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		switch len(matches) {
		case 0:
			return ErrTokenNotFound
		case 1:
			d.logger.Infof("Deleted access token %s...", identifier)
			return bucket.Delete(matches[0])
		default:
			return fmt.Errorf("identifier %q matches %d tokens", identifier, len(matches))
		}
	})
}

// ListAccessTokens returns metadata for all stored tokens
func (d *DB) ListAccessTokens() ([]AccessTokenMetadata, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	var tokens []AccessTokenMetadata
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketAccessTokens))
		if bucket == nil {
			return NewStoreError("list_tokens", fmt.Errorf("token bucket not found"))
		}
		return bucket.ForEach(func(k, v []byte) error {
			var metadata AccessTokenMetadata
			if err := json.Unmarshal(v, &metadata); err != nil {
				d.logger.Warningf("Skipping unreadable token record %s: %v", string(k), err)
				return nil
			}
			tokens = append(tokens, metadata)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
