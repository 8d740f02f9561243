package confirmation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/haltman-io/mailfwd/internal/config"
	"github.com/haltman-io/mailfwd/internal/domain"
	"github.com/haltman-io/mailfwd/internal/mailer"
	"github.com/haltman-io/mailfwd/internal/netaddr"
	"github.com/haltman-io/mailfwd/internal/pkg/logger"
	"github.com/haltman-io/mailfwd/internal/repository/postgres"
	"github.com/haltman-io/mailfwd/internal/token"
)

// Issuer creates or refreshes pending confirmations and dispatches the
// confirmation mail carrying the raw token. The raw token exists only inside
// Issue: it is hashed for storage and embedded in the outbound mail, nothing
// else ever sees it.
type Issuer struct {
	store  PendingStore
	sender Sender
	codec  *token.Codec
	cfg    config.ConfirmationConfig
	links  config.ForwardingConfig
	now    Clock
}

// NewIssuer wires an Issuer. cfg is expected to have defaults applied.
func NewIssuer(store PendingStore, sender Sender, codec *token.Codec, cfg config.ConfirmationConfig, links config.ForwardingConfig) *Issuer {
	return &Issuer{
		store:  store,
		sender: sender,
		codec:  codec,
		cfg:    cfg,
		links:  links,
		now:    time.Now,
	}
}

// WithClock replaces the issuer's clock, for tests.
func (i *Issuer) WithClock(c Clock) *Issuer {
	i.now = c
	return i
}

// IssueRequest asks for a confirmation mail to be (re)sent.
type IssueRequest struct {
	Email       string // destination mailbox that must prove ownership
	Intent      domain.Intent
	AliasName   string
	AliasDomain string
	RequestIP   string // textual client IP, optional
	UserAgent   string // optional
}

// IssueResult reports what happened.
type IssueResult struct {
	Sent       bool
	Reason     string // "cooldown" or "pending_other_intent" when not sent
	TTLMinutes int
}

// Issue runs the issuance flow: cooldown check against the live pending row,
// token generation, rotate-or-create, mail dispatch. Exactly one of rotate or
// create executes per call. A transport failure propagates; Sent is true only
// after the transport accepted the message.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	email := domain.Normalize(req.Email)
	if email == "" {
		return IssueResult{}, fmt.Errorf("issue: empty email")
	}
	intent := req.Intent
	if intent == "" {
		intent = domain.IntentSubscribe
	}

	result := IssueResult{TTLMinutes: i.cfg.TTLMinutes}

	pending, err := i.store.GetActivePendingByEmail(ctx, email)
	if err != nil {
		return IssueResult{}, fmt.Errorf("issue: %w", err)
	}

	if pending != nil {
		// One live pending row per email, and it is bound to its intent.
		// A conflicting flow has to wait for expiry or completion.
		if pending.Intent != intent {
			result.Reason = "pending_other_intent"
			return result, nil
		}
		if elapsed := i.now().Sub(pending.LastSentAt); elapsed < i.cfg.Cooldown() {
			result.Reason = "cooldown"
			return result, nil
		}
	}

	raw, err := i.codec.Generate(i.cfg.TokenLength)
	if err != nil {
		return IssueResult{}, fmt.Errorf("issue: %w", err)
	}
	hash := token.Hash(raw)

	var packedIP []byte
	if req.RequestIP != "" {
		// Provenance only; an unparseable IP is not worth failing the flow.
		if p, err := netaddr.PackIP16(req.RequestIP); err == nil {
			packedIP = p
		}
	}

	if pending != nil {
		rotated, err := i.store.RotateTokenForPending(ctx, postgres.RotateParams{
			Email:      email,
			TokenHash:  hash,
			TTLMinutes: i.cfg.TTLMinutes,
			RequestIP:  packedIP,
			UserAgent:  req.UserAgent,
		})
		if err != nil {
			return IssueResult{}, fmt.Errorf("issue: %w", err)
		}
		if !rotated {
			// The row expired or resolved between read and write. Fall
			// through to a fresh create rather than surfacing the race.
			pending = nil
		}
	}

	if pending == nil {
		if _, err := i.store.CreatePending(ctx, postgres.CreatePendingParams{
			Email:       email,
			TokenHash:   hash,
			TTLMinutes:  i.cfg.TTLMinutes,
			Intent:      intent,
			AliasName:   req.AliasName,
			AliasDomain: req.AliasDomain,
			RequestIP:   packedIP,
			UserAgent:   req.UserAgent,
		}); err != nil {
			return IssueResult{}, fmt.Errorf("issue: %w", err)
		}
	}

	confirmURL, err := i.confirmURL(raw)
	if err != nil {
		return IssueResult{}, err
	}

	msg := mailer.Message{
		To:      email,
		Subject: i.cfg.SubjectFor(string(intent)),
		Text:    textBody(intent, confirmURL, i.cfg.TTLMinutes),
		HTML:    htmlBody(intent, confirmURL, i.cfg.TTLMinutes),
	}
	if err := i.sender.Send(ctx, msg); err != nil {
		return IssueResult{}, fmt.Errorf("issue: %w", err)
	}

	logger.Info("confirmation mail dispatched",
		"email", email,
		"intent", string(intent),
		"alias", req.AliasName+"@"+req.AliasDomain,
	)

	result.Sent = true
	return result, nil
}

func (i *Issuer) confirmURL(rawToken string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(i.links.PublicURL), "/")
	if base == "" {
		return "", fmt.Errorf("issue: public URL is not configured")
	}
	return base + i.links.ConfirmEndpointOrDefault() + "?token=" + url.QueryEscape(rawToken), nil
}

func actionLabel(intent domain.Intent) string {
	if intent == domain.IntentUnsubscribe {
		return "remove this alias"
	}
	return "create this alias"
}

func textBody(intent domain.Intent, confirmURL string, ttlMinutes int) string {
	return fmt.Sprintf(
		"Confirm your email address to %s.\n\n"+
			"Link (valid for %d minutes):\n%s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		actionLabel(intent), ttlMinutes, confirmURL,
	)
}

func htmlBody(intent domain.Intent, confirmURL string, ttlMinutes int) string {
	action := "Create alias"
	if intent == domain.IntentUnsubscribe {
		action = "Remove alias"
	}
	return fmt.Sprintf(
		"<p>Confirm your email address.</p>"+
			"<p><strong>Action:</strong> %s</p>"+
			"<p><strong>Valid for %d minutes</strong></p>"+
			"<p><a href=%q>%s</a></p>"+
			"<p>If you did not request this, you can ignore this message.</p>",
		action, ttlMinutes, confirmURL, confirmURL,
	)
}
