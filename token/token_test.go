package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/expirymap"
)

func TestDefaultCacheFetchesOnceThenCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "T", ExpiresIn: 3600, TokenType: "Bearer"})
	}))
	defer srv.Close()

	c := NewDefaultCache(srv.Client())
	c.url = srv.URL

	get := func() string {
		done := make(chan string, 1)
		ctx := cpio.NewContext[struct{}, string](struct{}{}, [16]byte{}, func(rc *cpio.Context[struct{}, string]) {
			done <- rc.Response()
		})
		c.GetSessionToken(ctx)
		return <-done
	}

	if tok := get(); tok != "T" {
		t.Fatalf("token = %q, want T", tok)
	}
	if tok := get(); tok != "T" {
		t.Fatalf("token = %q, want T (cached)", tok)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestRecordExpiredAppliesGrace(t *testing.T) {
	now := time.Now()
	rec := Record{Token: "T", ExpireTime: now.Add(time.Hour)}
	if rec.Expired(now) {
		t.Fatal("token with an hour left should not be expired")
	}
	// Inside the grace margin the token is expired-for-client-purposes
	// even though the issuer still considers it valid.
	if !rec.Expired(now.Add(time.Hour - Grace + time.Second)) {
		t.Fatal("token inside the grace window should report expired")
	}
}

func makeJWT(payload jwtPayload) string {
	body, _ := json.Marshal(payload)
	return "hdr." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestAudienceCacheFetchAndCache(t *testing.T) {
	jwt := makeJWT(jwtPayload{Iss: "i", Aud: "a", Sub: "s", Iat: 1, Exp: time.Now().Add(time.Hour).Unix()})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, jwt)
	}))
	defer srv.Close()

	entries := expirymap.New[string, Record](expirymap.Config{Lifetime: time.Hour, SweepInterval: time.Hour}, nil)
	defer entries.Close()
	c := NewAudienceCache(entries, srv.Client())
	c.baseURL = srv.URL

	get := func() string {
		done := make(chan string, 1)
		ctx := cpio.NewContext[string, string]("aud-1", [16]byte{}, func(rc *cpio.Context[string, string]) {
			done <- rc.Response()
		})
		c.GetSessionTokenForTargetAudience(ctx)
		return <-done
	}
	if tok := get(); tok != jwt {
		t.Fatalf("token = %q, want %q", tok, jwt)
	}
	if tok := get(); tok != jwt {
		t.Fatalf("token = %q, want %q (cached)", tok, jwt)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}
