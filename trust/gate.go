package trust

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DeniedError is returned by Gate.Allow when a protected method is not
// permitted for the calling origin. NoAccount selects the
// no-account-selected message variant; the error code presented to
// clients is the same either way.
type DeniedError struct {
	Origin    string
	NoAccount bool
}

func (e *DeniedError) Error() string {
	if e.NoAccount {
		return "no account selected"
	}
	return fmt.Sprintf("permission denied for origin %s", e.Origin)
}

// AccountSource reports the wallet's currently selected addresses. The
// gate consults it only when a request is already being denied, to pick
// the message variant.
type AccountSource interface {
	SelectedAddresses(ctx context.Context) ([]string, error)
}

// StaticAccounts is a fixed AccountSource.
type StaticAccounts []string

var _ AccountSource = (StaticAccounts)(nil)

func (a StaticAccounts) SelectedAddresses(context.Context) ([]string, error) {
	return a, nil
}

// defaultProtectedMethods is the account and signing surface. Reads
// like eth_call or eth_blockNumber stay open.
var defaultProtectedMethods = []string{
	"eth_coinbase",
	"eth_accounts",
	"eth_requestAccounts",
	"eth_sendTransaction",
	"eth_signTransaction",
	"eth_sign",
	"personal_sign",
	"personal_ecRecover",
	"eth_signTypedData",
	"eth_signTypedData_v1",
	"eth_signTypedData_v3",
	"eth_signTypedData_v4",
	"wallet_addEthereumChain",
	"wallet_switchEthereumChain",
	"wallet_watchAsset",
	"wallet_getPermissions",
	"wallet_requestPermissions",
}

// Gate answers whether an origin may call a method right now.
type Gate struct {
	store     Store
	accounts  AccountSource
	protected map[string]struct{}
	log       *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithAccountSource wires the account collaborator used for the
// no-account-selected denial variant.
func WithAccountSource(src AccountSource) Option {
	return func(g *Gate) { g.accounts = src }
}

// WithProtectedMethods replaces the default protected-method set.
func WithProtectedMethods(methods []string) Option {
	return func(g *Gate) {
		g.protected = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			g.protected[m] = struct{}{}
		}
	}
}

// WithLogger sets a custom logger for the Gate.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGate builds a Gate over the given decision store.
func NewGate(store Store, opts ...Option) *Gate {
	g := &Gate{
		store:     store,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		protected: make(map[string]struct{}, len(defaultProtectedMethods)),
	}
	for _, m := range defaultProtectedMethods {
		g.protected[m] = struct{}{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// IsProtectedMethod reports whether the method requires a trust check.
func (g *Gate) IsProtectedMethod(method string) bool {
	_, ok := g.protected[method]
	return ok
}

// Allow returns nil when the origin may call the method. Unprotected
// methods always pass without touching the store. Denials are returned
// as *DeniedError; store failures and a missing store deny rather than
// pass.
func (g *Gate) Allow(ctx context.Context, origin, method string) error {
	if !g.IsProtectedMethod(method) {
		return nil
	}

	if g.store == nil {
		return g.denied(ctx, origin)
	}

	ok, err := g.store.Trusted(ctx, origin)
	if err != nil {
		g.log.Warn("trust lookup failed, denying",
			slog.String("origin", origin),
			slog.String("method", method),
			slog.String("err", err.Error()))
		return g.denied(ctx, origin)
	}
	if ok {
		return nil
	}

	return g.denied(ctx, origin)
}

func (g *Gate) denied(ctx context.Context, origin string) *DeniedError {
	denied := &DeniedError{Origin: origin}
	if g.accounts != nil {
		if addrs, err := g.accounts.SelectedAddresses(ctx); err == nil && len(addrs) == 0 {
			denied.NoAccount = true
		}
	}
	return denied
}
