package token

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/romanqed/cpio"
)

const defaultTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// DefaultCache fronts the default-identity metadata endpoint with a
// single cached token. Reads and writes of the slot are serialized by
// one read-write lock.
type DefaultCache struct {
	mu     sync.RWMutex
	record Record

	client *http.Client
	url    string
}

// NewDefaultCache builds a DefaultCache. client defaults to
// http.DefaultClient if nil.
func NewDefaultCache(client *http.Client) *DefaultCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &DefaultCache{client: client, url: defaultTokenURL}
}

// GetSessionToken resolves ctx.Response with the cached token if it is
// not yet expired-for-client-purposes, synchronously on the callback
// path; otherwise it performs one HTTP GET, replaces the cached token
// under the lock, and resolves.
func (c *DefaultCache) GetSessionToken(ctx *cpio.Context[struct{}, string]) {
	c.mu.RLock()
	rec := c.record
	c.mu.RUnlock()
	if rec.Token != "" && !rec.Expired(time.Now()) {
		ctx.ResolveSuccess(rec.Token)
		return
	}
	fetched, err := c.fetch()
	if err != nil {
		ctx.ResolveFailure(cpio.Retriable(classifyFetchErr(err), err))
		return
	}
	c.mu.Lock()
	c.record = fetched
	c.mu.Unlock()
	ctx.ResolveSuccess(fetched.Token)
}

func (c *DefaultCache) fetch() (Record, error) {
	req, err := http.NewRequest(http.MethodGet, c.url, nil)
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := c.client.Do(req)
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()
	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if body.AccessToken == "" || body.ExpiresIn == 0 || body.TokenType == "" {
		return Record{}, fmt.Errorf("%w: missing a required field", ErrMalformedToken)
	}
	now := time.Now()
	return Record{
		Token:      body.AccessToken,
		ExpireTime: now.Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
