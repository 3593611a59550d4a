// Package identity authenticates the people and services that call the
// moderation API.
//
// It provides:
//   - Directory: the configured principals and their bcrypt secret hashes
//   - TokenIssuer: issues and verifies HS256 JWT access tokens
//   - RequireRole: Gin middleware enforcing a Bearer token with a given role
package identity

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

// Roles carried in access tokens.
const (
	// RoleService is held by marketplace backends calling the analysis and
	// auto-moderation endpoints.
	RoleService = "service"
	// RoleReviewer may list and review flags and work on reports.
	RoleReviewer = "reviewer"
	// RoleAdmin may do everything a reviewer can.
	RoleAdmin = "admin"
)

// ErrBadCredentials is returned when a principal id or secret does not match.
var ErrBadCredentials = errors.New("invalid credentials")

// Principal is a configured caller of the API.
type Principal struct {
	ID         int64  `mapstructure:"id"          json:"id"`
	Name       string `mapstructure:"name"        json:"name"`
	Role       string `mapstructure:"role"        json:"role"`
	SecretHash string `mapstructure:"secret_hash" json:"-"`
}

// Directory looks up principals by id.
type Directory struct {
	byID map[int64]Principal
}

// NewDirectory validates principals and indexes them by id.
func NewDirectory(principals []Principal) (*Directory, error) {
	d := &Directory{byID: make(map[int64]Principal, len(principals))}
	for _, p := range principals {
		if p.ID <= 0 {
			return nil, fmt.Errorf("principal %q: id must be positive", p.Name)
		}
		if !slices.Contains([]string{RoleService, RoleReviewer, RoleAdmin}, p.Role) {
			return nil, fmt.Errorf("principal %d: unknown role %q", p.ID, p.Role)
		}
		if _, err := bcrypt.Cost([]byte(p.SecretHash)); err != nil {
			return nil, fmt.Errorf("principal %d: secret_hash is not a bcrypt hash: %w", p.ID, err)
		}
		if _, dup := d.byID[p.ID]; dup {
			return nil, fmt.Errorf("principal %d: duplicate id", p.ID)
		}
		d.byID[p.ID] = p
	}
	return d, nil
}

// Authenticate checks secret against the principal's hash.
func (d *Directory) Authenticate(id int64, secret string) (*Principal, error) {
	p, ok := d.byID[id]
	if !ok {
		// Compare anyway so unknown ids cost the same as wrong secrets.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.SecretHash), []byte(secret)); err != nil {
		return nil, ErrBadCredentials
	}
	return &p, nil
}

// Len returns the number of principals.
func (d *Directory) Len() int { return len(d.byID) }

// HashSecret returns the bcrypt hash to put in a principal's secret_hash.
func HashSecret(secret string) (string, error) {
	if len(secret) < 12 {
		return "", errors.New("secret must be at least 12 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-secret"), bcrypt.MinCost)
