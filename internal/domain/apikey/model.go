package apikey

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates admin and back-office integrations. Only the hash of the
// full key is stored.
type APIKey struct {
	ID          uuid.UUID  `db:"id"`
	KeyHash     string     `db:"key_hash"`
	Prefix      string     `db:"prefix"`
	Description string     `db:"description"`
	IsEnabled   bool       `db:"is_enabled"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
}

const (
	PrefixLength = 8
	SecretLength = 32
	KeyFormat    = "ks_%s_%s"
	KeyScheme    = "ks"
)
