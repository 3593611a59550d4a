package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// adverseDispositions are the review outcomes that count against a user.
var adverseDispositions = []model.Disposition{
	model.DispositionFlagged, model.DispositionRejected,
	model.DispositionSuspended, model.DispositionBanned,
}

// ContentRepository reads marketplace records from the ads, users and
// messages tables. The engine never writes to them.
type ContentRepository struct {
	db *pgxpool.Pool
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{db: db}
}

// GetAd loads an ad by ID.
func (r *ContentRepository) GetAd(ctx context.Context, id int64) (*model.Ad, error) {
	var ad model.Ad
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, category, title, description, price, created_at FROM ads WHERE id = $1`, id,
	).Scan(&ad.ID, &ad.UserID, &ad.Category, &ad.Title, &ad.Description, &ad.Price, &ad.CreatedAt)
	if err != nil {
		return nil, notFound("ad", id, err)
	}
	return &ad, nil
}

// GetUser loads a user account by ID.
func (r *ContentRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, email_verified, phone_verified, status FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.CreatedAt, &u.EmailVerified, &u.PhoneVerified, &u.Status)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return &u, nil
}

// GetMessage loads a message by ID.
func (r *ContentRepository) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var m model.Message
	err := r.db.QueryRow(ctx,
		`SELECT id, sender_id, recipient_id, body, created_at FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt)
	if err != nil {
		return nil, notFound("message", id, err)
	}
	return &m, nil
}

// PriorFlagCount counts reviewed flags with an adverse disposition on the
// user's account, ads and sent messages.
func (r *ContentRepository) PriorFlagCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM moderation_flags f
		 WHERE f.status = 'reviewed' AND f.disposition = ANY($2)
		   AND (
		     (f.content_type = 'user' AND f.content_id = $1)
		     OR (f.content_type = 'ad' AND f.content_id IN (SELECT id FROM ads WHERE user_id = $1))
		     OR (f.content_type = 'message' AND f.content_id IN (SELECT id FROM messages WHERE sender_id = $1))
		   )`,
		userID, adverseDispositions,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count prior flags for user %d: %w", userID, err)
	}
	return n, nil
}

func notFound(kind string, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %d: %w", kind, id, err)
}
