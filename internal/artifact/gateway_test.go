package artifact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakePinningService emulates a pinning API and gateway over one mux.
type fakePinningService struct {
	mu       sync.Mutex
	docs     map[string][]byte
	authSeen string
	pinCode  int
	getCode  int
	pinBody  string
}

func newFakePinningService(t *testing.T) (*fakePinningService, *httptest.Server) {
	t.Helper()
	f := &fakePinningService{docs: make(map[string][]byte)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pinning/pinJSONToIPFS", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authSeen = r.Header.Get("Authorization")
		if f.pinCode != 0 {
			w.WriteHeader(f.pinCode)
			return
		}
		if f.pinBody != "" {
			_, _ = io.WriteString(w, f.pinBody)
			return
		}
		var req struct {
			Content json.RawMessage `json:"pinataContent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cid := "bafy" + string(ContentAddress(req.Content))[:20]
		f.docs[cid] = req.Content
		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": cid, "PinSize": len(req.Content)})
	})
	mux.HandleFunc("GET /ipfs/{cid}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.getCode != 0 {
			w.WriteHeader(f.getCode)
			return
		}
		doc, ok := f.docs[r.PathValue("cid")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(doc)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestGateway(t *testing.T, srv *httptest.Server) *GatewayBackend {
	t.Helper()
	g, err := NewGatewayBackend(GatewayConfig{
		PinURL:     srv.URL + "/pinning/pinJSONToIPFS",
		GatewayURL: srv.URL + "/",
		JWT:        "test-jwt",
	})
	if err != nil {
		t.Fatalf("NewGatewayBackend: %v", err)
	}
	return g
}

func TestGatewayPutGet(t *testing.T) {
	f, srv := newFakePinningService(t)
	g := newTestGateway(t, srv)
	a := NewAdapter(g, testOptions())
	env, _ := sealTest(t)

	addr, err := a.Publish(context.Background(), env)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.HasPrefix(string(addr), "bafy") {
		t.Errorf("expected gateway address, got %q", addr)
	}
	if f.authSeen != "Bearer test-jwt" {
		t.Errorf("expected bearer token, got %q", f.authSeen)
	}

	got, err := a.Fetch(context.Background(), addr)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got.Ciphertext) != string(env.Ciphertext) {
		t.Error("fetched ciphertext differs from published")
	}
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		name    string
		pinCode int
		pinBody string
		getCode int
		get     bool
		check   func(error) bool
	}{
		{"pin 503", http.StatusServiceUnavailable, "", 0, false, IsUnreachable},
		{"pin 429", http.StatusTooManyRequests, "", 0, false, IsUnreachable},
		{"pin 401", http.StatusUnauthorized, "", 0, false, IsMalformedResponse},
		{"pin without hash", 0, `{"PinSize": 10}`, 0, false, IsMalformedResponse},
		{"pin garbage", 0, `<html>`, 0, false, IsMalformedResponse},
		{"get 404", 0, "", 0, true, IsNotFound},
		{"get 500", 0, "", http.StatusInternalServerError, true, IsUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakePinningService(t)
			f.pinCode, f.pinBody, f.getCode = tt.pinCode, tt.pinBody, tt.getCode
			g := newTestGateway(t, srv)

			var err error
			if tt.get {
				_, err = g.Get(context.Background(), "bafy-unknown")
			} else {
				_, err = g.Put(context.Background(), []byte(`{"iv":"x"}`))
			}
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestGatewayUnreachableHost(t *testing.T) {
	_, srv := newFakePinningService(t)
	g := newTestGateway(t, srv)
	srv.Close()

	if _, err := g.Get(context.Background(), "bafy"); !IsUnreachable(err) {
		t.Errorf("expected unreachable, got %v", err)
	}
}

func TestGatewayRejectsNonJSON(t *testing.T) {
	_, srv := newFakePinningService(t)
	g := newTestGateway(t, srv)
	if _, err := g.Put(context.Background(), []byte("not json")); err == nil {
		t.Error("expected error for non-JSON document")
	}
}

func TestNewGatewayBackendValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GatewayConfig
	}{
		{"empty", GatewayConfig{}},
		{"relative pin", GatewayConfig{PinURL: "/pin", GatewayURL: "https://gw.example"}},
		{"missing gateway", GatewayConfig{PinURL: "https://pin.example/pin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGatewayBackend(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
