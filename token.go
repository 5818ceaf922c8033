package atmosphere

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// TokenPath is the path in the config store
	TokenPath = "atmosphere/tokens/"

	// ErrTokenExpired is returned when looking up a token past its expiry
	ErrTokenExpired = errors.New("token expired")
)

// Token authenticates API requests as a user
type Token struct {
	context       *Context
	modifiedIndex uint64
	Key           string    `json:"key"`
	User          string    `json:"user"`
	Expires       time.Time `json:"expires"`
}

// NewToken creates a token for user valid for ttl. A zero ttl never expires.
func (c *Context) NewToken(user string, ttl time.Duration) *Token {
	t := &Token{
		context: c,
		Key:     uuid.New(),
		User:    user,
	}
	if ttl > 0 {
		t.Expires = time.Now().UTC().Add(ttl)
	}
	return t
}

// Token fetches a token, failing with ErrTokenExpired for stale tokens
func (c *Context) Token(key string) (*Token, error) {
	var err error
	key, err = canonicalizeUUID(key)
	if err != nil {
		return nil, err
	}
	t := &Token{context: c, Key: key}
	value, err := c.kv.Get(t.key())
	if err != nil {
		return nil, err
	}
	t.modifiedIndex = value.Index
	if err := json.Unmarshal(value.Data, t); err != nil {
		return nil, err
	}
	if t.Expired() {
		return nil, ErrTokenExpired
	}
	return t, nil
}

func (t *Token) key() string {
	return filepath.Join(TokenPath, t.Key)
}

// Expired reports whether the token is past its expiry
func (t *Token) Expired() bool {
	return !t.Expires.IsZero() && time.Now().After(t.Expires)
}

// Save persists a token
func (t *Token) Save() error {
	if t.User == "" {
		return errors.New("token user required")
	}
	if uuid.Parse(t.Key) == nil {
		return errors.New("token key must be uuid")
	}
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	index, err := t.context.kv.Update(t.key(), kv.Value{Data: v, Index: t.modifiedIndex})
	if err != nil {
		return err
	}
	t.modifiedIndex = index
	return nil
}

// Destroy revokes a token
func (t *Token) Destroy() error {
	return t.context.kv.Remove(t.key(), t.modifiedIndex)
}
