package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/expirymap"
)

const audienceIdentityURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/identity"

type jwtPayload struct {
	Iss string `json:"iss"`
	Aud string `json:"aud"`
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// AudienceCache is the per-audience token cache, layered on
// expirymap.Map so eviction, touch-on-access and locking are inherited
// rather than reimplemented.
type AudienceCache struct {
	entries *expirymap.Map[string, Record]
	client  *http.Client
	baseURL string
}

// NewAudienceCache builds an AudienceCache. client defaults to
// http.DefaultClient if nil. entries should be sized with a Lifetime at
// least as long as the tokens it will hold; Grace is applied on top by
// Record.Expired regardless of the map's own TTL.
func NewAudienceCache(entries *expirymap.Map[string, Record], client *http.Client) *AudienceCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &AudienceCache{entries: entries, client: client, baseURL: audienceIdentityURL}
}

// GetSessionTokenForTargetAudience resolves ctx.Response with the JWT
// for audience, from cache if present and unexpired, otherwise by
// fetching a fresh one and upserting it via Erase-then-Insert (the map
// does not overwrite). Two concurrent refreshes of the same audience may
// both fetch, and a lookup landing between the erase and the insert
// refetches; both cost one extra request, never a stale token.
func (c *AudienceCache) GetSessionTokenForTargetAudience(ctx *cpio.Context[string, string]) {
	audience := ctx.Request()
	if ref, ok := c.entries.Find(audience); ok {
		rec := ref.Value()
		ref.Release()
		if !rec.Expired(time.Now()) {
			ctx.ResolveSuccess(rec.Token)
			return
		}
	}
	rec, jwt, err := c.fetch(audience)
	if err != nil {
		ctx.ResolveFailure(cpio.Retriable(classifyFetchErr(err), err))
		return
	}
	_ = c.entries.Erase(audience)
	_ = c.entries.Insert(audience, rec)
	ctx.ResolveSuccess(jwt)
}

func (c *AudienceCache) fetch(audience string) (Record, string, error) {
	u := c.baseURL + "?audience=" + url.QueryEscape(audience) + "&format=full"
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return Record{}, "", err
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := c.client.Do(req)
	if err != nil {
		return Record{}, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Record{}, "", err
	}
	jwt := strings.TrimSpace(string(body))
	payload, err := parseJWTPayload(jwt)
	if err != nil {
		return Record{}, "", err
	}
	if payload.Iss == "" || payload.Aud == "" || payload.Sub == "" || payload.Iat == 0 || payload.Exp == 0 {
		return Record{}, "", fmt.Errorf("%w: JWT payload missing a required claim", ErrMalformedToken)
	}
	return Record{
		Token:      jwt,
		ExpireTime: time.Unix(payload.Exp, 0),
	}, jwt, nil
}

func parseJWTPayload(jwt string) (jwtPayload, error) {
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		return jwtPayload{}, fmt.Errorf("%w: want 3 dot-separated JWT parts, got %d", ErrMalformedToken, len(parts))
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// fall back to standard padded base64 in case the endpoint used it
		decoded, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return jwtPayload{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	var payload jwtPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return jwtPayload{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return payload, nil
}

// classifyFetchErr maps a fetch failure onto a result code: a response
// the endpoint delivered but that could not be used is bad-session-token;
// a transport failure carries no core code and surfaces as the HTTP
// client's own error.
func classifyFetchErr(err error) cpio.Code {
	if errors.Is(err, ErrMalformedToken) {
		return cpio.CodeBadSessionToken
	}
	return cpio.CodeNone
}
