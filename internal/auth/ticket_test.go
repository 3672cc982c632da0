package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("sekrit")
	tok, err := v.Sign("p1", "mira", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID != "p1" || claims.Name != "mira" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewVerifier("sekrit").Sign("p1", "mira", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewVerifier("other").Verify(tok); !errors.Is(err, ErrInvalidTicket) {
		t.Fatalf("err = %v, want invalid ticket", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("sekrit")
	tok, err := v.Sign("p1", "mira", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, ErrExpiredTicket) {
		t.Fatalf("err = %v, want expired ticket", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("sekrit")
	if _, err := v.Verify("not-a-token"); !errors.Is(err, ErrInvalidTicket) {
		t.Fatalf("err = %v, want invalid ticket", err)
	}
}

func TestDisabledVerifier(t *testing.T) {
	if NewVerifier("").Enabled() {
		t.Fatal("empty secret must disable verification")
	}
	if !NewVerifier("sekrit").Enabled() {
		t.Fatal("non-empty secret must enable verification")
	}
}
