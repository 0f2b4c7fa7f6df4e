// Package truststoretest provides a reusable conformance suite for
// trust.Store implementations.
package truststoretest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ethgate-dev/ethgate/trust"
)

// StoreFactory creates a new trust.Store instance for testing.
type StoreFactory func(t *testing.T) trust.Store

// RunTrustStoreTests runs the complete trust.Store test suite against
// the provided factory.
func RunTrustStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("DefaultIsUntrusted", func(t *testing.T) { testDefaultUntrusted(t, factory) })
	t.Run("GrantThenTrusted", func(t *testing.T) { testGrantThenTrusted(t, factory) })
	t.Run("GrantIsIdempotent", func(t *testing.T) { testGrantIdempotent(t, factory) })
	t.Run("RevokeWithdrawsGrant", func(t *testing.T) { testRevoke(t, factory) })
	t.Run("RevokeWithoutGrantIsNoop", func(t *testing.T) { testRevokeNoop(t, factory) })
	t.Run("OriginsAreIsolated", func(t *testing.T) { testIsolation(t, factory) })
}

// origin fabricates a unique origin per test so suites can run against
// shared backends (a live Redis) without cross-run interference.
func origin(label string) string {
	return fmt.Sprintf("https://%s-%s.example", label, uuid.NewString()[:8])
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testDefaultUntrusted(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)

	ok, err := s.Trusted(ctx, origin("fresh"))
	if err != nil {
		t.Fatalf("Trusted: %v", err)
	}
	if ok {
		t.Fatalf("fresh origin reported trusted")
	}
}

func testGrantThenTrusted(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)
	o := origin("granted")

	if err := s.Grant(ctx, o); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	ok, err := s.Trusted(ctx, o)
	if err != nil {
		t.Fatalf("Trusted: %v", err)
	}
	if !ok {
		t.Fatalf("granted origin reported untrusted")
	}
}

func testGrantIdempotent(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)
	o := origin("twice")

	if err := s.Grant(ctx, o); err != nil {
		t.Fatalf("Grant 1: %v", err)
	}
	if err := s.Grant(ctx, o); err != nil {
		t.Fatalf("Grant 2: %v", err)
	}
	if ok, _ := s.Trusted(ctx, o); !ok {
		t.Fatalf("double grant lost the trust decision")
	}
}

func testRevoke(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)
	o := origin("revoked")

	if err := s.Grant(ctx, o); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := s.Revoke(ctx, o); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	ok, err := s.Trusted(ctx, o)
	if err != nil {
		t.Fatalf("Trusted: %v", err)
	}
	if ok {
		t.Fatalf("revoked origin still trusted")
	}
}

func testRevokeNoop(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)

	if err := s.Revoke(ctx, origin("never-granted")); err != nil {
		t.Fatalf("Revoke without grant: %v", err)
	}
}

func testIsolation(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := testCtx(t)
	granted := origin("a")
	other := origin("b")

	if err := s.Grant(ctx, granted); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if ok, _ := s.Trusted(ctx, other); ok {
		t.Fatalf("grant for %s leaked to %s", granted, other)
	}

	if err := s.Revoke(ctx, other); err != nil {
		t.Fatalf("Revoke other: %v", err)
	}
	if ok, _ := s.Trusted(ctx, granted); !ok {
		t.Fatalf("revoking %s withdrew the grant for %s", other, granted)
	}
}
