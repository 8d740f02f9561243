package domain

import (
	"reflect"
	"strings"
	"testing"
)

func TestValidAliasName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "hackbart", true},
		{"with digits", "user123", true},
		{"inner dot", "first.last", true},
		{"single char", "a", true},
		{"max length", strings.Repeat("a", 64), true},
		{"too long", strings.Repeat("a", 65), false},
		{"leading dot", ".user", false},
		{"trailing dot", "user.", false},
		{"underscore", "user_name", false},
		{"hyphen", "user-name", false},
		{"plus", "user+tag", false},
		{"uppercase", "User", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidAliasName(tt.input); got != tt.want {
				t.Errorf("ValidAliasName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidDomainName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "example.com", true},
		{"subdomain", "mail.example.com", true},
		{"hyphenated label", "my-site.example.net", true},
		{"two letter tld", "example.io", true},
		{"no dot", "localhost", false},
		{"numeric tld", "example.123", false},
		{"leading hyphen", "-bad.example.com", false},
		{"trailing hyphen", "bad-.example.com", false},
		{"uppercase", "Example.com", false},
		{"single letter tld", "example.x", false},
		{"too long", strings.Repeat("a", 250) + ".com", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidDomainName(tt.input); got != tt.want {
				t.Errorf("ValidDomainName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *ParsedEmail
	}{
		{
			"simple",
			"user@example.com",
			&ParsedEmail{Email: "user@example.com", Local: "user", Domain: "example.com"},
		},
		{
			"normalized",
			"  User@Example.COM  ",
			&ParsedEmail{Email: "user@example.com", Local: "user", Domain: "example.com"},
		},
		{
			"local with separators",
			"first.last_x-1@mail.example.org",
			&ParsedEmail{Email: "first.last_x-1@mail.example.org", Local: "first.last_x-1", Domain: "mail.example.org"},
		},
		{"plus tag rejected", "user+tag@example.com", nil},
		{"no at", "userexample.com", nil},
		{"two ats", "user@@example.com", nil},
		{"empty local", "@example.com", nil},
		{"empty domain", "user@", nil},
		{"bad domain", "user@example", nil},
		{"empty", "", nil},
		{"too long", strings.Repeat("a", 250) + "@example.com", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEmail(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseEmail(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDomainSuffixes(t *testing.T) {
	got := DomainSuffixes("a.b.example.com")
	want := []string{"a.b.example.com", "b.example.com", "example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DomainSuffixes = %v, want %v", got, want)
	}

	if got := DomainSuffixes("example.com"); !reflect.DeepEqual(got, []string{"example.com"}) {
		t.Errorf("DomainSuffixes(example.com) = %v", got)
	}

	if got := DomainSuffixes("localhost"); got != nil {
		t.Errorf("DomainSuffixes(localhost) = %v, want nil", got)
	}
}

func TestPendingConfirmationAddress(t *testing.T) {
	p := &PendingConfirmation{AliasName: "foo", AliasDomain: "bar.com"}
	if p.Address() != "foo@bar.com" {
		t.Errorf("Address = %q", p.Address())
	}
}

func TestPendingConfirmationHasPayload(t *testing.T) {
	p := &PendingConfirmation{Email: "x@y.com", AliasName: "foo", AliasDomain: "bar.com"}
	if !p.HasPayload() {
		t.Error("expected payload present")
	}
	p.AliasName = ""
	if p.HasPayload() {
		t.Error("expected payload missing")
	}
}
