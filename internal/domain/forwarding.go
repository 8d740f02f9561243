package domain

import (
	"time"
)

// ConfirmationStatus is the lifecycle state of a pending confirmation row.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusExpired   ConfirmationStatus = "expired"
)

// Intent is the action a confirmation will perform once the recipient
// proves ownership of the destination mailbox.
type Intent string

const (
	IntentSubscribe   Intent = "subscribe"
	IntentUnsubscribe Intent = "unsubscribe"
)

// PendingConfirmation is one row of the email_confirmations table: a single
// outstanding (or terminal) confirmation attempt for an email address.
// Only the SHA-256 digest of the token is ever stored, never the raw token.
type PendingConfirmation struct {
	ID              string
	Email           string
	TokenHash       []byte
	Status          ConfirmationStatus
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ConfirmedAt     *time.Time
	SendCount       int
	LastSentAt      time.Time
	ConfirmAttempts int
	Intent          Intent
	AliasName       string
	AliasDomain     string
	RequestIP       []byte // 16-byte packed form, nil when unknown
	UserAgent       string
}

// Address returns the alias address this confirmation will create or remove.
func (p *PendingConfirmation) Address() string {
	return p.AliasName + "@" + p.AliasDomain
}

// HasPayload reports whether the row carries everything needed to apply its
// intent. A live pending row without a payload is an internal defect.
func (p *PendingConfirmation) HasPayload() bool {
	return p.Email != "" && p.AliasName != "" && p.AliasDomain != ""
}

// Alias is a forwarding address: mail sent to Address is redirected to Goto.
type Alias struct {
	ID       string
	Address  string
	Goto     string
	Active   bool
	DomainID string
	Created  time.Time
	Modified time.Time
}

// AliasDomain is a domain aliases can be created under.
type AliasDomain struct {
	ID     string
	Name   string
	Active bool
}

// BanType classifies an admission-control denial rule.
type BanType string

const (
	BanEmail  BanType = "email"
	BanDomain BanType = "domain"
	BanIP     BanType = "ip"
)
