package oauth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/events"
)

type fakeIssuer struct {
	calls int
	ttl   time.Duration
	now   func() time.Time
	err   error
}

func (f *fakeIssuer) IssueToken(_ context.Context, scopes []string) (Token, error) {
	f.calls++
	if f.err != nil {
		return Token{}, f.err
	}
	return Token{
		AccessToken: fmt.Sprintf("token-%d", f.calls),
		Expiry:      f.now().Add(f.ttl),
		Scopes:      scopes,
	}, nil
}

func newManagerFixture(t *testing.T, issuer *fakeIssuer) (*TokenManager, *events.Collector) {
	t.Helper()
	bus := events.NewBus(zap.NewNop())
	t.Cleanup(bus.Close)
	collector := &events.Collector{}
	bus.Subscribe("collector", collector)
	return NewTokenManager(issuer, bus, zap.NewNop()), collector
}

func TestTokenManager_CachesUntilNearExpiry(t *testing.T) {
	now := testBase
	clock := func() time.Time { return now }
	issuer := &fakeIssuer{ttl: time.Hour, now: clock}
	m, collector := newManagerFixture(t, issuer)
	m.now = clock

	scopes := []string{"calc:execute"}
	first, err := m.Token(context.Background(), scopes)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Token(context.Background(), scopes)
	if err != nil {
		t.Fatal(err)
	}
	if issuer.calls != 1 {
		t.Fatalf("expected one issuance, got %d", issuer.calls)
	}
	if first.AccessToken != second.AccessToken {
		t.Fatal("cache returned a different token")
	}

	// Scope order and duplicates must not defeat the cache.
	if _, err := m.Token(context.Background(), []string{"calc:execute", "calc:execute"}); err != nil {
		t.Fatal(err)
	}
	if issuer.calls != 1 {
		t.Fatalf("scope-set variants re-issued: %d calls", issuer.calls)
	}

	if !collector.Wait(1, time.Second) || collector.Count(events.TokenAcquired) != 1 {
		t.Fatal("expected exactly one TOKEN_ACQUIRED event")
	}
}

func TestTokenManager_RefreshesNearExpiry(t *testing.T) {
	now := testBase
	clock := func() time.Time { return now }
	issuer := &fakeIssuer{ttl: time.Hour, now: clock}
	m, collector := newManagerFixture(t, issuer)
	m.now = clock

	scopes := []string{"calc:execute"}
	if _, err := m.Token(context.Background(), scopes); err != nil {
		t.Fatal(err)
	}

	now = testBase.Add(time.Hour - 10*time.Second) // inside the refresh margin
	if _, err := m.Token(context.Background(), scopes); err != nil {
		t.Fatal(err)
	}
	if issuer.calls != 2 {
		t.Fatalf("expected refresh issuance, got %d calls", issuer.calls)
	}

	if !collector.Wait(2, time.Second) {
		t.Fatal("expected two events")
	}
	if collector.Count(events.TokenAcquired) != 1 || collector.Count(events.TokenRefreshed) != 1 {
		t.Fatalf("unexpected event mix: %v", collector.Types())
	}
}

func TestTokenManager_Revoke(t *testing.T) {
	now := testBase
	clock := func() time.Time { return now }
	issuer := &fakeIssuer{ttl: time.Hour, now: clock}
	m, collector := newManagerFixture(t, issuer)
	m.now = clock

	scopes := []string{"calc:execute"}
	if _, err := m.Token(context.Background(), scopes); err != nil {
		t.Fatal(err)
	}

	if !m.Revoke(scopes) {
		t.Fatal("revoke of cached token reported nothing cached")
	}
	if m.Revoke(scopes) {
		t.Fatal("second revoke reported a cached token")
	}

	// Next request is a fresh acquisition, not a refresh.
	if _, err := m.Token(context.Background(), scopes); err != nil {
		t.Fatal(err)
	}
	if issuer.calls != 2 {
		t.Fatalf("expected re-issuance after revoke, got %d calls", issuer.calls)
	}

	if !collector.Wait(3, time.Second) || collector.Count(events.TokenRevoked) != 1 {
		t.Fatal("expected one TOKEN_REVOKED event")
	}
	if collector.Count(events.TokenAcquired) != 2 {
		t.Fatalf("expected two TOKEN_ACQUIRED events, got %d", collector.Count(events.TokenAcquired))
	}
}

func TestTokenManager_IssuerFailure(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("idp unreachable"), now: time.Now, ttl: time.Hour}
	m, _ := newManagerFixture(t, issuer)

	_, err := m.Token(context.Background(), []string{"calc:execute"})
	if err == nil {
		t.Fatal("expected error from failing issuer")
	}
	if !etdi.IsKind(err, etdi.KindOAuth) {
		t.Fatalf("expected oauth error, got: %v", err)
	}
}
