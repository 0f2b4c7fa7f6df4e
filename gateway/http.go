package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"

	"github.com/ethgate-dev/ethgate/internal/logctx"
	"github.com/ethgate-dev/ethgate/jsonrpc"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// maxPostBody bounds a single-shot POST request body.
const maxPostBody = 1 << 20

// writeJSONError emits a transport-level JSON body for HTTP rejections
// that happen before a JSON-RPC exchange is possible. Shape:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// servePost runs the message pipeline once against a one-shot
// connection. Subscribe-class methods are rejected up front: a POST
// response cannot host the asynchronous events a subscription emits.
func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPostBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	p, err := jsonrpc.ParsePayload(body)
	if err != nil {
		s.log.DebugContext(r.Context(), "rejecting malformed POST frame", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "request is not a JSON-RPC 2.0 call")
		return
	}

	meta := connMetaFromRequest(r)

	written := false
	c := newConn(transportHTTP, meta, func(data []byte) error {
		if written {
			return errConnClosed
		}
		written = true
		w.Header().Set("Content-Type", jsonMediaType.String())
		_, err := w.Write(data)
		return err
	})
	defer c.close()

	ctx := logctx.WithConnData(r.Context(), &logctx.ConnData{
		ConnID:     c.id,
		Origin:     meta.RawOrigin,
		RemoteAddr: r.RemoteAddr,
		Transport:  transportHTTP,
	})
	ctx = logctx.WithRPCData(ctx, &logctx.RPCData{Method: p.Method, ID: p.ID.String(), ChainID: p.ChainID})

	s.metrics.connOpened()
	defer s.metrics.connClosed()

	var resp *jsonrpc.Response
	if isSubscribeMethod(p.Method) {
		s.metrics.request(outcomeRejected)
		resp = jsonrpc.NewErrorResponse(p.ID, jsonrpc.ErrorCodeUnsupportedMethod, "subscriptions are not available over HTTP")
	} else {
		resp = s.handle(ctx, c, p)
	}

	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := c.sendResponse(resp); err != nil {
		s.log.DebugContext(ctx, "failed to write POST response", slog.String("err", err.Error()))
	}
}
