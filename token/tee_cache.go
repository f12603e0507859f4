package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/romanqed/cpio"
)

const teeSocketPath = "/run/container_launcher/teeserver.sock"
const teeTokenURL = "http://localhost/v1/token"

// teeRequest is the body POSTed to the TEE token endpoint.
type teeRequest struct {
	Audience  string `json:"audience"`
	TokenType string `json:"token_type"`
}

// TEECache fetches attestation tokens from the TEE launcher's local
// token server: a POST over a Unix-domain socket rather than a GET over
// TCP.
type TEECache struct {
	client *http.Client
}

// NewTEECache builds a TEECache dialing the well-known TEE server socket
// path. socketPath overrides the default, mainly for tests.
func NewTEECache(socketPath string) *TEECache {
	if socketPath == "" {
		socketPath = teeSocketPath
	}
	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &TEECache{client: &http.Client{Transport: transport, Timeout: 10 * time.Second}}
}

// TEERequest is the (audience, token-type) pair passed to GetTEEToken.
type TEERequest struct {
	Audience  string
	TokenType string
}

// GetTEEToken POSTs {audience, token_type} to the TEE endpoint. An empty
// response body resolves with a non-retriable bad-session-token failure
// (the launcher answered and declined; asking again will not change it);
// any other failure to complete the request is retriable.
func (c *TEECache) GetTEEToken(ctx *cpio.Context[TEERequest, string]) {
	req := ctx.Request()
	payload, err := json.Marshal(teeRequest{Audience: req.Audience, TokenType: req.TokenType})
	if err != nil {
		ctx.ResolveFailure(cpio.Failure(cpio.CodeBadSessionToken, err))
		return
	}
	httpReq, err := http.NewRequest(http.MethodPost, teeTokenURL, bytes.NewReader(payload))
	if err != nil {
		ctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		ctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	if len(body) == 0 {
		ctx.ResolveFailure(cpio.Failure(cpio.CodeBadSessionToken, fmt.Errorf("token: TEE endpoint returned an empty body")))
		return
	}
	ctx.ResolveSuccess(string(body))
}
