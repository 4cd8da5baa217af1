package auth

import (
	"context"
	"testing"
)

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{UserID: "user-123", Email: "a@example.com"})

	p, ok := PrincipalFrom(ctx)
	if !ok {
		t.Fatal("PrincipalFrom() found no principal")
	}
	if p.UserID != "user-123" || p.Email != "a@example.com" {
		t.Errorf("PrincipalFrom() = %+v", p)
	}
	if GetCurrentUser(ctx) != "user-123" {
		t.Errorf("GetCurrentUser() = %v", GetCurrentUser(ctx))
	}
}

func TestPrincipalFromEmptyContext(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Error("PrincipalFrom() reported a principal on an empty context")
	}
}
