package atmosphere

import (
	"encoding/json"
	"errors"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/mistifyio/atmosphere/pkg/kv"
	"github.com/pborman/uuid"
)

var (
	// BookmarkPath is the path in the config store
	BookmarkPath = "atmosphere/bookmarks/"

	// ErrDuplicateBookmark is returned when a user bookmarks the same
	// application twice
	ErrDuplicateBookmark = errors.New("application already bookmarked")
)

type (
	// ApplicationBookmark marks an application (image) as a favorite of a
	// user. Bookmarks are always scoped to their user.
	ApplicationBookmark struct {
		context       *Context
		modifiedIndex uint64
		ID            string    `json:"id"`
		Application   string    `json:"application"`
		User          string    `json:"user"`
		Created       time.Time `json:"created"`
	}

	// ApplicationBookmarks is an alias to a slice of *ApplicationBookmark
	ApplicationBookmarks []*ApplicationBookmark
)

func (bs ApplicationBookmarks) Len() int           { return len(bs) }
func (bs ApplicationBookmarks) Less(i, j int) bool { return bs[i].Created.Before(bs[j].Created) }
func (bs ApplicationBookmarks) Swap(i, j int)      { bs[i], bs[j] = bs[j], bs[i] }

// NewBookmark creates a blank bookmark owned by user
func (c *Context) NewBookmark(user string) *ApplicationBookmark {
	return &ApplicationBookmark{
		context: c,
		ID:      uuid.New(),
		User:    user,
		Created: time.Now().UTC(),
	}
}

// Bookmark fetches a user's bookmark. id may be either the bookmark id or
// the id of the bookmarked application.
func (c *Context) Bookmark(user, id string) (*ApplicationBookmark, error) {
	if user == "" {
		return nil, errors.New("user required")
	}
	id, err := canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}

	b := &ApplicationBookmark{
		context: c,
		ID:      id,
		User:    user,
	}
	err = b.Refresh()
	if err == nil {
		return b, nil
	}
	if !c.kv.IsKeyNotFound(err) {
		return nil, err
	}

	// fall back to the application lookup field
	var found *ApplicationBookmark
	err = c.ForEachBookmark(user, func(b *ApplicationBookmark) error {
		if b.Application == id {
			found = b
			return errStopIteration
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Bookmarks returns all of a user's bookmarks, oldest first
func (c *Context) Bookmarks(user string) (ApplicationBookmarks, error) {
	bookmarks := ApplicationBookmarks{}
	err := c.ForEachBookmark(user, func(b *ApplicationBookmark) error {
		bookmarks = append(bookmarks, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(bookmarks)
	return bookmarks, nil
}

// ForEachBookmark will run f on each of a user's bookmarks. It will stop
// iteration if f returns an error.
func (c *Context) ForEachBookmark(user string, f func(*ApplicationBookmark) error) error {
	values, err := c.kv.GetAll(filepath.Join(BookmarkPath, user))
	if err != nil {
		if c.kv.IsKeyNotFound(err) {
			return nil
		}
		return err
	}
	for _, value := range values {
		b := &ApplicationBookmark{context: c}
		if err := b.fromValue(value); err != nil {
			return err
		}
		if err := f(b); err != nil {
			return err
		}
	}
	return nil
}

// key is a helper to generate the config store key
func (b *ApplicationBookmark) key() string {
	return filepath.Join(BookmarkPath, b.User, b.ID)
}

// fromValue is a helper to unmarshal a bookmark
func (b *ApplicationBookmark) fromValue(value kv.Value) error {
	b.modifiedIndex = value.Index
	return json.Unmarshal(value.Data, b)
}

// Refresh reloads from the data store
func (b *ApplicationBookmark) Refresh() error {
	value, err := b.context.kv.Get(b.key())
	if err != nil {
		return err
	}
	return b.fromValue(value)
}

// Validate ensures a bookmark has reasonable data
func (b *ApplicationBookmark) Validate() error {
	if b.ID == "" {
		return errors.New("bookmark ID required")
	}
	if uuid.Parse(b.ID) == nil {
		return errors.New("bookmark ID must be uuid")
	}
	if b.User == "" {
		return errors.New("bookmark user required")
	}
	if path.Base(b.User) != b.User {
		return errors.New("bookmark user is invalid")
	}
	if b.Application == "" {
		return errors.New("bookmark application required")
	}
	if uuid.Parse(b.Application) == nil {
		return errors.New("bookmark application must be uuid")
	}
	return nil
}

// Save persists a bookmark. It will call Validate, and refuses a second
// bookmark of the same application for the same user.
func (b *ApplicationBookmark) Save() error {
	if err := b.Validate(); err != nil {
		return err
	}

	if b.modifiedIndex == 0 {
		err := b.context.ForEachBookmark(b.User, func(other *ApplicationBookmark) error {
			if other.Application == b.Application && other.ID != b.ID {
				return ErrDuplicateBookmark
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	v, err := json.Marshal(b)
	if err != nil {
		return err
	}

	// if we changed something, don't clobber
	index, err := b.context.kv.Update(b.key(), kv.Value{Data: v, Index: b.modifiedIndex})
	if err != nil {
		return err
	}
	b.modifiedIndex = index
	return nil
}

// Destroy removes a bookmark
func (b *ApplicationBookmark) Destroy() error {
	return b.context.kv.Remove(b.key(), b.modifiedIndex)
}
