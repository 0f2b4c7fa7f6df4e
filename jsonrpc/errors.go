package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeLimitExceeded indicates the caller exceeded its request rate.
	ErrorCodeLimitExceeded ErrorCode = -32005

	// ErrorCodeInvalidChain rejects requests whose declared chain id is
	// not a hex-prefixed string.
	ErrorCodeInvalidChain ErrorCode = -1

	// ErrorCodePermissionDenied is the EIP-1193 user-rejected/denied code
	// used for untrusted origins and unknown extensions.
	ErrorCodePermissionDenied ErrorCode = 4001
	// ErrorCodeUnsupportedMethod is the EIP-1193 code for methods the
	// transport cannot serve, such as subscriptions over plain HTTP.
	ErrorCodeUnsupportedMethod ErrorCode = 4200
)
