// Package logctx decorates slog records with request-scoped attributes
// carried on the context, so call sites can log without re-threading
// connection and message metadata through every function.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends contextual groups for
// the connection and RPC message bound to the context, when present.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(connDataKey{}).(*ConnData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("id", cd.ConnID),
			slog.String("origin", cd.Origin),
			slog.String("remote_addr", cd.RemoteAddr),
			slog.String("transport", cd.Transport),
		))
	}

	if md, ok := ctx.Value(rpcDataKey{}).(*RPCData); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", md.Method),
			slog.String("id", md.ID),
			slog.String("chain_id", md.ChainID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type connDataKey struct{}

// ConnData identifies one client connection for the lifetime of its
// message loop.
type ConnData struct {
	ConnID     string
	Origin     string
	RemoteAddr string
	Transport  string
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}

type rpcDataKey struct{}

// RPCData identifies the message currently being processed.
type RPCData struct {
	Method  string
	ID      string
	ChainID string
}

func WithRPCData(ctx context.Context, data *RPCData) context.Context {
	return context.WithValue(ctx, rpcDataKey{}, data)
}
