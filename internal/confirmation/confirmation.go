// Package confirmation implements the email-confirmation state machine: it
// issues single-use, time-bounded tokens tied to a pending intent and applies
// that intent exactly once when a valid token comes back.
//
// The package holds no mutable state of its own. Every race between
// concurrent requests is settled by the store's conditional updates, so any
// number of service instances can run against the same database.
package confirmation

import (
	"context"
	"errors"
	"time"

	"github.com/haltman-io/mailfwd/internal/domain"
	"github.com/haltman-io/mailfwd/internal/mailer"
	"github.com/haltman-io/mailfwd/internal/repository/postgres"
)

// PendingStore persists confirmation attempts. Implemented by
// postgres.ConfirmationRepo.
type PendingStore interface {
	GetActivePendingByEmail(ctx context.Context, email string) (*domain.PendingConfirmation, error)
	CreatePending(ctx context.Context, params postgres.CreatePendingParams) (*domain.PendingConfirmation, error)
	RotateTokenForPending(ctx context.Context, params postgres.RotateParams) (bool, error)
	GetPendingByTokenHash(ctx context.Context, hash []byte) (*domain.PendingConfirmation, error)
	MarkConfirmedByID(ctx context.Context, id string) (bool, error)
	BumpConfirmAttemptsByID(ctx context.Context, id string) error
}

// AliasDirectory owns alias existence, race-safe creation and deletion.
// Implemented by postgres.AliasRepo.
type AliasDirectory interface {
	GetByAddress(ctx context.Context, address string) (*domain.Alias, error)
	ExistsByAddress(ctx context.Context, address string) (bool, error)
	CreateIfNotExists(ctx context.Context, address, gotoEmail, domainID string) (created bool, existing *domain.Alias, err error)
	DeleteByAddress(ctx context.Context, address string) (bool, error)
}

// DomainRegistry answers whether an alias domain is known and active.
// Implemented by postgres.DomainRepo.
type DomainRegistry interface {
	GetActiveByName(ctx context.Context, name string) (*domain.AliasDomain, error)
}

// Sender dispatches outbound confirmation mail.
// Implemented by mailer.SESSender.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Classified resolution failures. Everything that is not one of these (or a
// validation error) propagates as a generic internal error.
var (
	// ErrInvalidToken: the presented token failed the format gate. Rejected
	// before any store access.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrInvalidOrExpired deliberately covers "never existed", "expired" and
	// "already consumed" so resolution leaks nothing about token existence.
	ErrInvalidOrExpired = errors.New("invalid_or_expired")

	// ErrPayloadMissing: a live pending row without an intent payload. An
	// internal invariant violation, never caused by the caller.
	ErrPayloadMissing = errors.New("confirmation_payload_missing")

	// ErrInvalidDomain: the alias domain was deactivated between request and
	// confirmation.
	ErrInvalidDomain = errors.New("invalid_domain")

	// ErrAliasNotFound: unsubscribe confirmation for an alias that no longer
	// exists.
	ErrAliasNotFound = errors.New("alias_not_found")

	// ErrAliasOwnerChanged: the alias was reassigned after the unsubscribe
	// request was issued; deleting it would act on someone else's alias.
	ErrAliasOwnerChanged = errors.New("alias_owner_changed")

	// ErrUnsupportedIntent: the stored intent has no handler.
	ErrUnsupportedIntent = errors.New("unsupported_intent")
)

// Clock lets tests pin time. Production uses time.Now.
type Clock func() time.Time
