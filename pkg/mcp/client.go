package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
)

// Client is a minimal JSON-RPC client over a framed stream, enough for the
// CLI to drive a running gateway (listing and resolving approvals).
type Client struct {
	reader *bufio.Reader
	writer *bufio.Writer
	nextID atomic.Int64
}

// NewClient wraps an established connection.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{reader: bufio.NewReader(rw), writer: bufio.NewWriter(rw)}
}

// Call sends one request and waits for its response.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return nil, err
	}
	if _, err := c.writer.Write(payload); err != nil {
		return nil, err
	}
	if err := c.writer.Flush(); err != nil {
		return nil, err
	}

	respPayload, err := readMessage(c.reader)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	return resp.Result, nil
}
