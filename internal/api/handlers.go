// Package api exposes the forwarding service over HTTP: the subscribe,
// unsubscribe and confirm endpoints plus health. Handlers validate and gate;
// all state transitions live in the confirmation core.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/haltman-io/mailfwd/internal/config"
	"github.com/haltman-io/mailfwd/internal/confirmation"
	"github.com/haltman-io/mailfwd/internal/domain"
	"github.com/haltman-io/mailfwd/internal/ratelimit"
)

// BanRegistry is the admission-control deny list consulted before issuing.
// Implemented by postgres.BanRepo.
type BanRegistry interface {
	IsBannedEmail(ctx context.Context, email string) (bool, error)
	IsBannedDomain(ctx context.Context, name string) (bool, error)
	IsBannedIP(ctx context.Context, ip string) (bool, error)
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	issuer   *confirmation.Issuer
	resolver *confirmation.Resolver
	aliases  confirmation.AliasDirectory
	domains  confirmation.DomainRegistry
	bans     BanRegistry
	limiter  *ratelimit.Limiter
	cfg      *config.Config
	health   *HealthChecker
}

// NewHandlers wires the handler set.
func NewHandlers(
	issuer *confirmation.Issuer,
	resolver *confirmation.Resolver,
	aliases confirmation.AliasDirectory,
	domains confirmation.DomainRegistry,
	bans BanRegistry,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
	health *HealthChecker,
) *Handlers {
	return &Handlers{
		issuer:   issuer,
		resolver: resolver,
		aliases:  aliases,
		domains:  domains,
		bans:     bans,
		limiter:  limiter,
		cfg:      cfg,
		health:   health,
	}
}

// clientIP extracts the client address. Behind middleware.RealIP, RemoteAddr
// already carries the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// checkBans runs the IP / email / domain-suffix deny rules. A ban on a parent
// domain covers every subdomain of the destination.
func (h *Handlers) checkBans(ctx context.Context, ip, email, emailDomain string) (banned bool, banType string, banValue string, err error) {
	if ip != "" {
		b, err := h.bans.IsBannedIP(ctx, ip)
		if err != nil {
			return false, "", "", err
		}
		if b {
			return true, "ip", "", nil
		}
	}

	if email != "" {
		b, err := h.bans.IsBannedEmail(ctx, email)
		if err != nil {
			return false, "", "", err
		}
		if b {
			return true, "email", "", nil
		}
	}

	for _, suf := range domain.DomainSuffixes(emailDomain) {
		b, err := h.bans.IsBannedDomain(ctx, suf)
		if err != nil {
			return false, "", "", err
		}
		if b {
			return true, "domain", suf, nil
		}
	}

	return false, "", "", nil
}

// HandleSubscribe validates a subscribe request and issues the confirmation
// mail. Nothing is created here; the alias only appears after confirmation.
//
//	GET /forward/subscribe?name=...&domain=...&to=...
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	name := domain.Normalize(q.Get("name"))
	toRaw := q.Get("to")
	domainInput := domain.Normalize(q.Get("domain"))
	ip := clientIP(r)

	if name == "" {
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_params", "field": "name"})
		return
	}
	if strings.TrimSpace(toRaw) == "" {
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_params", "field": "to"})
		return
	}

	if !domain.ValidAliasName(name) {
		respondError(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid_params", "field": "name",
			"hint": "allowed: a-z 0-9 dot; cannot start/end with dot; max 64",
		})
		return
	}

	to := domain.ParseEmail(toRaw)
	if to == nil {
		respondError(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid_params", "field": "to",
			"hint": "allowed local: a-z 0-9 dot underscore hyphen; domain: strict DNS; lowercase",
		})
		return
	}

	chosenDomain := domainInput
	if chosenDomain == "" {
		chosenDomain = domain.Normalize(h.cfg.Forwarding.DefaultAliasDomain)
	}
	if chosenDomain == "" {
		respondError(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "server_misconfigured", "field": "default_alias_domain",
		})
		return
	}
	if !domain.ValidDomainName(chosenDomain) {
		// A bad default is the server's fault, a bad query parameter the caller's.
		if domainInput != "" {
			respondError(w, http.StatusBadRequest, map[string]interface{}{
				"error": "invalid_params", "field": "domain",
				"hint": "allowed: strict DNS domain (a-z 0-9 hyphen dot), TLD letters >=2",
			})
		} else {
			respondError(w, http.StatusInternalServerError, map[string]interface{}{
				"error": "server_misconfigured", "field": "domain",
			})
		}
		return
	}

	banned, banType, banValue, err := h.checkBans(ctx, ip, to.Email, to.Domain)
	if err != nil {
		respondInternalError(w, "subscribe: ban check", err)
		return
	}
	if banned {
		fields := map[string]interface{}{"error": "banned", "type": banType}
		if banValue != "" {
			fields["value"] = banValue
		}
		respondError(w, http.StatusForbidden, fields)
		return
	}

	domainRow, err := h.domains.GetActiveByName(ctx, chosenDomain)
	if err != nil {
		respondInternalError(w, "subscribe: domain lookup", err)
		return
	}
	if domainRow == nil {
		respondError(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid_domain", "field": "domain",
			"hint": "domain must exist in database and be active",
		})
		return
	}

	address := name + "@" + chosenDomain
	taken, err := h.aliases.ExistsByAddress(ctx, address)
	if err != nil {
		respondInternalError(w, "subscribe: alias lookup", err)
		return
	}
	if taken {
		respondError(w, http.StatusConflict, map[string]interface{}{
			"error": "alias_taken", "address": address,
		})
		return
	}

	result, err := h.issuer.Issue(ctx, confirmation.IssueRequest{
		Email:       to.Email,
		Intent:      domain.IntentSubscribe,
		AliasName:   name,
		AliasDomain: chosenDomain,
		RequestIP:   ip,
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		respondInternalError(w, "subscribe: issue", err)
		return
	}

	conf := map[string]interface{}{
		"sent":        result.Sent,
		"ttl_minutes": result.TTLMinutes,
	}
	if result.Reason != "" {
		conf["reason"] = result.Reason
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"action":          "subscribe",
		"alias_candidate": address,
		"to":              to.Email,
		"confirmation":    conf,
	})
}

// HandleUnsubscribe validates an unsubscribe request and issues the
// confirmation mail to the alias's current destination, proving the remover
// still owns the mailbox the alias forwards to.
//
//	GET /forward/unsubscribe?alias=...
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	aliasParsed := domain.ParseEmail(r.URL.Query().Get("alias"))
	if aliasParsed == nil {
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_params", "field": "alias"})
		return
	}
	if !domain.ValidAliasName(aliasParsed.Local) {
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_params", "field": "alias_name"})
		return
	}

	if ip != "" {
		bannedIP, err := h.bans.IsBannedIP(ctx, ip)
		if err != nil {
			respondInternalError(w, "unsubscribe: ban check", err)
			return
		}
		if bannedIP {
			respondError(w, http.StatusForbidden, map[string]interface{}{"error": "banned", "type": "ip"})
			return
		}
	}

	address := aliasParsed.Email
	aliasRow, err := h.aliases.GetByAddress(ctx, address)
	if err != nil {
		respondInternalError(w, "unsubscribe: alias lookup", err)
		return
	}
	if aliasRow == nil {
		respondError(w, http.StatusNotFound, map[string]interface{}{"error": "alias_not_found", "alias": address})
		return
	}
	if !aliasRow.Active {
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "alias_inactive", "alias": address})
		return
	}

	gotoParsed := domain.ParseEmail(aliasRow.Goto)
	if gotoParsed == nil {
		respondError(w, http.StatusInternalServerError, map[string]interface{}{"error": "invalid_goto_on_alias", "alias": address})
		return
	}

	// Bans apply to the real destination, not the alias.
	banned, banType, banValue, err := h.checkBans(ctx, "", gotoParsed.Email, gotoParsed.Domain)
	if err != nil {
		respondInternalError(w, "unsubscribe: ban check", err)
		return
	}
	if banned {
		fields := map[string]interface{}{"error": "banned", "type": banType}
		if banValue != "" {
			fields["value"] = banValue
		}
		respondError(w, http.StatusForbidden, fields)
		return
	}

	result, err := h.issuer.Issue(ctx, confirmation.IssueRequest{
		Email:       gotoParsed.Email,
		Intent:      domain.IntentUnsubscribe,
		AliasName:   aliasParsed.Local,
		AliasDomain: aliasParsed.Domain,
		RequestIP:   ip,
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		respondInternalError(w, "unsubscribe: issue", err)
		return
	}

	body := map[string]interface{}{
		"ok":          true,
		"action":      "unsubscribe",
		"alias":       address,
		"sent":        result.Sent,
		"ttl_minutes": result.TTLMinutes,
	}
	if result.Reason != "" {
		body["reason"] = result.Reason
	}
	respondJSON(w, http.StatusOK, body)
}

// HandleConfirm resolves a presented token and reports the applied intent.
//
//	GET /forward/confirm?token=...
func (h *Handlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	presented := strings.TrimSpace(r.URL.Query().Get("token"))

	result, err := h.resolver.Resolve(r.Context(), presented)
	if err != nil {
		h.respondResolveError(w, result, err)
		return
	}

	switch result.Intent {
	case domain.IntentUnsubscribe:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":        true,
			"confirmed": true,
			"intent":    string(result.Intent),
			"removed":   result.Removed,
			"address":   result.Address,
		})
	default:
		body := map[string]interface{}{
			"ok":        true,
			"confirmed": true,
			"intent":    string(result.Intent),
			"created":   result.Created,
			"address":   result.Address,
			"goto":      result.Goto,
		}
		if result.AlreadyExists {
			body["reason"] = "already_exists"
		}
		respondJSON(w, http.StatusOK, body)
	}
}

func (h *Handlers) respondResolveError(w http.ResponseWriter, result confirmation.ResolveResult, err error) {
	switch {
	case errors.Is(err, confirmation.ErrInvalidToken):
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_token"})
	case errors.Is(err, confirmation.ErrInvalidOrExpired):
		respondError(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_or_expired"})
	case errors.Is(err, confirmation.ErrInvalidDomain):
		dom := result.Address
		if i := strings.IndexByte(dom, '@'); i >= 0 {
			dom = dom[i+1:]
		}
		respondError(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid_domain", "domain": dom,
		})
	case errors.Is(err, confirmation.ErrAliasNotFound):
		respondError(w, http.StatusNotFound, map[string]interface{}{
			"error": "alias_not_found", "address": result.Address,
		})
	case errors.Is(err, confirmation.ErrAliasOwnerChanged):
		respondError(w, http.StatusConflict, map[string]interface{}{
			"error": "alias_owner_changed", "address": result.Address,
		})
	case errors.Is(err, confirmation.ErrUnsupportedIntent):
		respondError(w, http.StatusBadRequest, map[string]interface{}{
			"error": "unsupported_intent", "intent": string(result.Intent),
		})
	case errors.Is(err, confirmation.ErrPayloadMissing):
		respondError(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "confirmation_payload_missing",
		})
	default:
		respondInternalError(w, "confirm", err)
	}
}
