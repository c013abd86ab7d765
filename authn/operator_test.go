package authn_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/authn"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	tok, err := authn.IssueToken("op-1", authn.ModeratorRole, "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	decoded, err := authn.ParseToken(tok, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded.OperatorID != "op-1" || decoded.Role != authn.ModeratorRole {
		t.Fatalf("unexpected decoded token: %+v", decoded)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, _ := authn.IssueToken("op-1", authn.AdminRole, "secret", time.Hour)
	if _, err := authn.ParseToken(tok, "wrong"); err == nil {
		t.Fatalf("expected an error for a mismatched signing secret")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tok, _ := authn.IssueToken("op-1", authn.AdminRole, "secret", -time.Minute)
	if _, err := authn.ParseToken(tok, "secret"); err != authn.ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestGateRejectsInsufficientRole(t *testing.T) {
	tok, _ := authn.IssueToken("op-1", authn.GuestRole, "secret", time.Hour)
	if _, err := authn.Gate(tok, "secret", authn.ModeratorRole); err == nil {
		t.Fatalf("expected a guest-role token to be rejected for a moderator-level action")
	}
}

func TestGateAllowsSufficientRole(t *testing.T) {
	tok, _ := authn.IssueToken("op-1", authn.AdminRole, "secret", time.Hour)
	decoded, err := authn.Gate(tok, "secret", authn.ModeratorRole)
	if err != nil {
		t.Fatalf("expected an admin-role token to satisfy a moderator-level gate: %v", err)
	}
	if decoded.OperatorID != "op-1" {
		t.Fatalf("unexpected operator id: %s", decoded.OperatorID)
	}
}
