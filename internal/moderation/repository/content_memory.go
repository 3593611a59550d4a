package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryContent is an in-process stand-in for the marketplace tables. Prior
// flag counts are derived from the attached flag store, if any.
type MemoryContent struct {
	ads      *xsync.MapOf[int64, model.Ad]
	users    *xsync.MapOf[int64, model.User]
	messages *xsync.MapOf[int64, model.Message]
	flags    *MemoryFlagRepository
}

// NewMemoryContent creates an empty MemoryContent. flags may be nil.
func NewMemoryContent(flags *MemoryFlagRepository) *MemoryContent {
	return &MemoryContent{
		ads:      xsync.NewMapOf[int64, model.Ad](),
		users:    xsync.NewMapOf[int64, model.User](),
		messages: xsync.NewMapOf[int64, model.Message](),
		flags:    flags,
	}
}

// PutAd stores or replaces an ad.
func (c *MemoryContent) PutAd(ad model.Ad) { c.ads.Store(ad.ID, ad) }

// PutUser stores or replaces a user.
func (c *MemoryContent) PutUser(u model.User) { c.users.Store(u.ID, u) }

// PutMessage stores or replaces a message.
func (c *MemoryContent) PutMessage(m model.Message) { c.messages.Store(m.ID, m) }

// GetAd loads an ad by ID.
func (c *MemoryContent) GetAd(_ context.Context, id int64) (*model.Ad, error) {
	ad, ok := c.ads.Load(id)
	if !ok {
		return nil, fmt.Errorf("ad %d: %w", id, ErrNotFound)
	}
	return &ad, nil
}

// GetUser loads a user by ID.
func (c *MemoryContent) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := c.users.Load(id)
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

// GetMessage loads a message by ID.
func (c *MemoryContent) GetMessage(_ context.Context, id int64) (*model.Message, error) {
	m, ok := c.messages.Load(id)
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return &m, nil
}

// PriorFlagCount counts reviewed flags with an adverse disposition on content
// owned by userID.
func (c *MemoryContent) PriorFlagCount(_ context.Context, userID int64) (int, error) {
	if c.flags == nil {
		return 0, nil
	}
	n := 0
	c.flags.flags.Range(func(_ int64, f *model.Flag) bool {
		if f.Disposition == nil || !slices.Contains(adverseDispositions, *f.Disposition) {
			return true
		}
		if c.owner(f.ContentType, f.ContentID) == userID {
			n++
		}
		return true
	})
	return n, nil
}

func (c *MemoryContent) owner(ct model.ContentType, id int64) int64 {
	switch ct {
	case model.ContentUser:
		return id
	case model.ContentAd:
		if ad, ok := c.ads.Load(id); ok {
			return ad.UserID
		}
	case model.ContentMessage:
		if m, ok := c.messages.Load(id); ok {
			return m.SenderID
		}
	}
	return -1
}
