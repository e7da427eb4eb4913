package remotebuild

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/runtime/netstack"
)

// Client calls a remote compile-as-a-service Server over HTTP/3.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Client targeting baseURL (e.g. "https://host:443").
// A nil tlsCfg uses a TLS 1.3 client config with the default
// certificate verification; callers that need certificate pinning or a
// custom trust root pass their own tlsCfg.
func NewClient(baseURL string, tlsCfg *tls.Config, timeout time.Duration) *Client {
	return &Client{http: netstack.HTTP3Client(tlsCfg, timeout), baseURL: baseURL}
}

// Compile uploads byte-code with the given build options and returns
// the decoded CompileResponse.
func (c *Client) Compile(bc []byte, opts config.BuildOptions) (*CompileResponse, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/compile", bytes.NewReader(bc))
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Build-Options", string(optsJSON))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			return nil, fmt.Errorf("remotebuild: %s", errResp.Error)
		}

		return nil, fmt.Errorf("remotebuild: server returned status %d", resp.StatusCode)
	}

	var out CompileResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Close releases the underlying HTTP/3 transport.
func (c *Client) Close() { netstack.ShutdownHTTP3(c.http) }
