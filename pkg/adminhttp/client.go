package adminhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/raftd/pkg/control"
)

func parseNodeID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// Client is a thin HTTP client for cmd/raftd's subcommands, the other
// side of Server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client dialing the admin HTTP server at addr.
func NewClient(addr string) *Client {
	return &Client{baseURL: "http://" + addr, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return fmt.Errorf("raftd: %s", errBody.Error)
		}
		return fmt.Errorf("raftd: admin request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Init calls POST /v1/init.
func (c *Client) Init() error {
	return c.do(http.MethodPost, "/v1/init", nil, nil)
}

// Status calls GET /v1/status.
func (c *Client) Status() (control.ClusterStatus, error) {
	var status control.ClusterStatus
	err := c.do(http.MethodGet, "/v1/status", nil, &status)
	return status, err
}

// Nodes calls GET /v1/nodes.
func (c *Client) Nodes() ([]control.NodeInfo, error) {
	var nodes []control.NodeInfo
	err := c.do(http.MethodGet, "/v1/nodes", nil, &nodes)
	return nodes, err
}

// AddNode calls POST /v1/nodes.
func (c *Client) AddNode(id uint64, host string, port uint16) error {
	return c.do(http.MethodPost, "/v1/nodes", addNodeRequest{ID: id, Host: host, Port: port}, nil)
}

// RemoveNode calls DELETE /v1/nodes/{id}.
func (c *Client) RemoveNode(id uint64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/v1/nodes/%d", id), nil, nil)
}

// KVGet calls GET /v1/kv/{key}.
func (c *Client) KVGet(key string) ([]byte, bool, error) {
	var resp kvGetResponse
	if err := c.do(http.MethodGet, "/v1/kv/"+key, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

// KVPut calls PUT /v1/kv/{key}.
func (c *Client) KVPut(key string, value []byte) error {
	return c.do(http.MethodPut, "/v1/kv/"+key, struct {
		Value []byte `json:"value"`
	}{Value: value}, nil)
}

// KVDelete calls DELETE /v1/kv/{key}.
func (c *Client) KVDelete(key string) error {
	return c.do(http.MethodDelete, "/v1/kv/"+key, nil, nil)
}

// ReplicateEntry calls POST /v1/replicate.
func (c *Client) ReplicateEntry(payload []byte) error {
	return c.do(http.MethodPost, "/v1/replicate", struct {
		Payload []byte `json:"payload"`
	}{Payload: payload}, nil)
}

// SetDebug calls POST /v1/debug.
func (c *Client) SetDebug(enabled bool) error {
	return c.do(http.MethodPost, "/v1/debug", struct {
		Enabled bool `json:"enabled"`
	}{Enabled: enabled}, nil)
}

// WorkerState calls GET /v1/worker-state.
func (c *Client) WorkerState() (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	err := c.do(http.MethodGet, "/v1/worker-state", nil, &resp)
	return resp.State, err
}
