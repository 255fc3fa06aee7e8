package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// jsonRPCTransport is a JSON-RPC 2.0 HTTP client, adapted from the node's
// own RPC client shape: a single Call(method, params, result) entry point
// with no method-specific plumbing above it.
type jsonRPCTransport struct {
	endpoint string
	user     string
	pass     string
	http     *http.Client
}

func newJSONRPCTransport(endpoint, user, pass string, timeout time.Duration) *jsonRPCTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &jsonRPCTransport{
		endpoint: endpoint,
		user:     user,
		pass:     pass,
		http:     &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorObj    `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the node responds with a JSON-RPC error object.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call invokes method with params and decodes the result into result.
// If result is nil, the response result is discarded.
func (t *jsonRPCTransport) call(ctx context.Context, method string, params, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.user != "" || t.pass != "" {
		httpReq.SetBasicAuth(t.user, t.pass)
	}

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}
