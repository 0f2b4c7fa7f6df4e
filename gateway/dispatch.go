package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethgate-dev/ethgate/internal/logctx"
	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/origins"
	"github.com/ethgate-dev/ethgate/trust"
)

const (
	methodChainID     = "eth_chainId"
	methodNetVersion  = "net_version"
	methodUnsubscribe = "eth_unsubscribe"
)

// Subscription calls are classified by method-name suffix, matching the
// executor's naming convention across namespaces (eth_subscribe,
// shh_subscribe, ...).
func isSubscribeMethod(method string) bool {
	return strings.HasSuffix(method, "_subscribe")
}

func isUnsubscribeMethod(method string) bool {
	return strings.HasSuffix(method, "_unsubscribe")
}

// dispatch runs one message through the pipeline and writes the
// response, if any, back on the originating connection.
func (s *Server) dispatch(ctx context.Context, c *conn, p *jsonrpc.Payload) {
	ctx = logctx.WithRPCData(ctx, &logctx.RPCData{Method: p.Method, ID: p.ID.String(), ChainID: p.ChainID})

	resp := s.handle(ctx, c, p)
	if resp == nil {
		return
	}

	if err := c.sendResponse(resp); err != nil {
		s.log.DebugContext(ctx, "dropping response for closed connection")
	}
}

// handle implements the per-message pipeline: resolve origin, validate
// the declared chain id, update origin state, refresh the session,
// apply the rate limit, answer sentinel fast paths, enforce trust, and
// finally forward. A nil return means no response frame is owed.
func (s *Server) handle(ctx context.Context, c *conn, p *jsonrpc.Payload) *jsonrpc.Response {
	identity, err := s.resolver.Resolve(ctx, c.meta, p)
	if err != nil {
		var unknownExt *origins.UnknownExtensionError
		if errors.As(err, &unknownExt) {
			s.log.WarnContext(ctx, "rejecting unknown extension", slog.String("extension_id", unknownExt.ID))
			s.metrics.request(outcomeRejected)
			return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodePermissionDenied, unknownExt.Error())
		}
		s.log.ErrorContext(ctx, "origin resolution failed", slog.String("err", err.Error()))
		s.metrics.request(outcomeFailed)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error")
	}

	if p.ChainID != "" && !strings.HasPrefix(p.ChainID, "0x") {
		s.metrics.request(outcomeRejected)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInvalidChain,
			fmt.Sprintf("Invalid chain id (%s), chain id must be hex-prefixed string", p.ChainID))
	}

	chainID, err := s.origins.UpdateOrigin(ctx, p, identity, p.ExtensionConnecting)
	if err != nil {
		s.log.ErrorContext(ctx, "origin state update failed", slog.String("err", err.Error()))
		s.metrics.request(outcomeFailed)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error")
	}

	// Connection probes carry __extensionConnecting and must not keep a
	// session alive on their own.
	if !p.ExtensionConnecting {
		s.tracker.Extend(identity)
	}

	if !s.limiter.Allow(identity, time.Now()) {
		s.metrics.request(outcomeRateLimited)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeLimitExceeded, "request rate exceeded")
	}

	if identity == origins.ExtensionOrigin {
		if resp, handled := s.fastPath(ctx, p, chainID); handled {
			s.metrics.request(outcomeFastPath)
			return resp
		}
	}

	if err := s.trust.Allow(ctx, identity, p.Method); err != nil {
		var denied *trust.DeniedError
		if errors.As(err, &denied) {
			s.log.InfoContext(ctx, "denied protected method", slog.String("origin", identity))
			s.metrics.request(outcomeRejected)
			return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodePermissionDenied, denied.Error())
		}
		s.log.ErrorContext(ctx, "trust check failed", slog.String("err", err.Error()))
		s.metrics.request(outcomeFailed)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error")
	}

	return s.forward(ctx, c, p, identity)
}

// fastPath answers extension-sentinel methods without an executor round
// trip. The second return reports whether the method was handled.
func (s *Server) fastPath(ctx context.Context, p *jsonrpc.Payload, chainID string) (*jsonrpc.Response, bool) {
	switch p.Method {
	case MethodSummon:
		if s.summon != nil {
			s.summon(ctx)
		}
		return nil, true

	case methodChainID:
		resp, err := jsonrpc.NewResultResponse(p.ID, chainID)
		if err != nil {
			return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error"), true
		}
		return resp, true

	case methodNetVersion:
		version, err := chainVersion(chainID)
		if err != nil {
			s.log.WarnContext(ctx, "selected chain id is not parseable hex", slog.String("chain_id", chainID))
			return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error"), true
		}
		resp, err := jsonrpc.NewResultResponse(p.ID, version)
		if err != nil {
			return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error"), true
		}
		return resp, true
	}

	return nil, false
}

// chainVersion renders a hex chain id in the decimal form net_version
// clients expect.
func chainVersion(chainID string) (string, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(chainID, "0x"), 16, 64)
	if err != nil {
		return "", fmt.Errorf("parse chain id %q: %w", chainID, err)
	}
	return strconv.FormatUint(n, 10), nil
}

// forward sends the payload upstream, maintaining the subscription
// table around the round trip.
func (s *Server) forward(ctx context.Context, c *conn, p *jsonrpc.Payload, identity string) *jsonrpc.Response {
	if isUnsubscribeMethod(p.Method) {
		s.unregisterFromParams(ctx, p)
	}

	resp, err := s.executor.Forward(ctx, p)
	if err != nil {
		s.log.ErrorContext(ctx, "executor forward failed", slog.String("err", err.Error()))
		s.metrics.request(outcomeFailed)
		return jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeInternalError, "internal error")
	}

	if isSubscribeMethod(p.Method) && resp.Error == nil {
		var subID string
		if err := json.Unmarshal(resp.Result, &subID); err == nil && subID != "" {
			s.router.register(subID, c, identity, p.ChainID)
			s.metrics.subscriptionAdded()
			s.log.DebugContext(ctx, "subscription registered", slog.String("subscription", subID))
		}
	}

	s.metrics.request(outcomeForwarded)
	return resp
}

// unregisterFromParams releases every subscription id named by an
// unsubscribe call. Removal happens at forward time, whatever the
// executor eventually answers.
func (s *Server) unregisterFromParams(ctx context.Context, p *jsonrpc.Payload) {
	var ids []string
	if err := json.Unmarshal(p.Params, &ids); err != nil {
		s.log.DebugContext(ctx, "unsubscribe params name no subscription ids")
		return
	}

	removed := 0
	for _, id := range ids {
		if s.router.unregister(id) {
			removed++
		}
	}
	s.metrics.subscriptionRemoved(removed)
}
