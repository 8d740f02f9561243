package confirmation

import (
	"context"
	"fmt"

	"github.com/haltman-io/mailfwd/internal/domain"
	"github.com/haltman-io/mailfwd/internal/pkg/logger"
	"github.com/haltman-io/mailfwd/internal/token"
)

// Resolver consumes presented tokens and applies their intent through the
// alias directory. Consumption is serialized by the store's conditional
// update: of N concurrent attempts on one token, at most one applies.
type Resolver struct {
	store   PendingStore
	aliases AliasDirectory
	domains DomainRegistry
	codec   *token.Codec
}

// NewResolver wires a Resolver.
func NewResolver(store PendingStore, aliases AliasDirectory, domains DomainRegistry, codec *token.Codec) *Resolver {
	return &Resolver{store: store, aliases: aliases, domains: domains, codec: codec}
}

// ResolveResult describes a completed (or refused) confirmation.
type ResolveResult struct {
	Intent  domain.Intent
	Address string
	Goto    string

	// subscribe outcome
	Created       bool
	AlreadyExists bool

	// unsubscribe outcome
	Removed bool
}

// Resolve runs the confirmation state machine for one presented token:
//
//	received -> validated -> consumed -> applied
//
// Classified refusals come back as the package's sentinel errors; anything
// else is an internal failure. The alias side effect happens strictly after
// the store transition to confirmed has committed, so a token can never be
// consumed twice even if the side effect itself fails.
func (r *Resolver) Resolve(ctx context.Context, presented string) (ResolveResult, error) {
	// Format gate first: garbage never reaches hashing or the store.
	if !r.codec.LooksValid(presented) {
		return ResolveResult{}, ErrInvalidToken
	}

	pending, err := r.store.GetPendingByTokenHash(ctx, token.Hash(presented))
	if err != nil {
		return ResolveResult{}, fmt.Errorf("resolve: %w", err)
	}
	if pending == nil {
		// Indistinguishable from a wrong token on purpose.
		return ResolveResult{}, ErrInvalidOrExpired
	}

	// Abuse bookkeeping; never fails the flow.
	if err := r.store.BumpConfirmAttemptsByID(ctx, pending.ID); err != nil {
		logger.Warn("confirm attempt counter bump failed", "id", pending.ID, "err", err.Error())
	}

	if !pending.HasPayload() {
		// The row cannot say what to do. Creation validates the payload, so
		// reaching this means an invariant was violated upstream.
		logger.Error("pending confirmation without payload", "id", pending.ID)
		return ResolveResult{}, ErrPayloadMissing
	}

	result := ResolveResult{
		Intent:  pending.Intent,
		Address: pending.Address(),
		Goto:    pending.Email,
	}

	// Consume. The conditional write is the at-most-once guarantee: losing
	// the race here reads exactly like an expired token.
	consumed, err := r.store.MarkConfirmedByID(ctx, pending.ID)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("resolve: %w", err)
	}
	if !consumed {
		return ResolveResult{}, ErrInvalidOrExpired
	}

	switch pending.Intent {
	case domain.IntentSubscribe:
		return r.applySubscribe(ctx, pending, result)
	case domain.IntentUnsubscribe:
		return r.applyUnsubscribe(ctx, pending, result)
	default:
		return result, ErrUnsupportedIntent
	}
}

func (r *Resolver) applySubscribe(ctx context.Context, pending *domain.PendingConfirmation, result ResolveResult) (ResolveResult, error) {
	// Domains can be deactivated between request and confirmation.
	dom, err := r.domains.GetActiveByName(ctx, pending.AliasDomain)
	if err != nil {
		return result, fmt.Errorf("resolve subscribe: %w", err)
	}
	if dom == nil {
		return result, ErrInvalidDomain
	}

	// A duplicate confirmation click must not fail: an existing alias is
	// idempotent success.
	existing, err := r.aliases.GetByAddress(ctx, result.Address)
	if err != nil {
		return result, fmt.Errorf("resolve subscribe: %w", err)
	}
	if existing != nil {
		result.AlreadyExists = true
		return result, nil
	}

	created, _, err := r.aliases.CreateIfNotExists(ctx, result.Address, pending.Email, dom.ID)
	if err != nil {
		return result, fmt.Errorf("resolve subscribe: %w", err)
	}
	if !created {
		// Lost a creation race to a concurrent confirmation. Same idempotent
		// answer as the existence check above.
		result.AlreadyExists = true
		return result, nil
	}

	logger.Info("alias created", "address", result.Address, "goto", pending.Email)
	result.Created = true
	return result, nil
}

func (r *Resolver) applyUnsubscribe(ctx context.Context, pending *domain.PendingConfirmation, result ResolveResult) (ResolveResult, error) {
	alias, err := r.aliases.GetByAddress(ctx, result.Address)
	if err != nil {
		return result, fmt.Errorf("resolve unsubscribe: %w", err)
	}
	if alias == nil {
		return result, ErrAliasNotFound
	}

	// Stale-confirmation guard: if the alias now forwards somewhere else,
	// this confirmation was issued to a previous owner and must not delete.
	currentGoto := domain.Normalize(alias.Goto)
	if currentGoto != "" && currentGoto != pending.Email {
		return result, ErrAliasOwnerChanged
	}

	removed, err := r.aliases.DeleteByAddress(ctx, result.Address)
	if err != nil {
		return result, fmt.Errorf("resolve unsubscribe: %w", err)
	}

	logger.Info("alias removed", "address", result.Address, "removed", removed)
	result.Removed = removed
	return result, nil
}
