package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxDocumentSize caps how much of a gateway response is read.
const maxDocumentSize = 16 << 20

// GatewayConfig configures an IPFS pinning service plus public gateway.
type GatewayConfig struct {
	// PinURL receives JSON documents to pin, e.g. https://api.pinata.cloud/pinning/pinJSONToIPFS.
	PinURL string
	// GatewayURL serves pinned content under /ipfs/{address}.
	GatewayURL string
	// JWT is sent as a bearer token to the pinning service.
	JWT string
	// Timeout bounds each HTTP request. Zero means 20s.
	Timeout time.Duration
}

// GatewayBackend pins documents through a pinning API and reads them back
// through a public IPFS gateway.
type GatewayBackend struct {
	pinURL     string
	gatewayURL string
	jwt        string
	client     *http.Client
}

type pinRequest struct {
	Content  json.RawMessage `json:"pinataContent"`
	Metadata pinMetadata     `json:"pinataMetadata"`
	Options  pinOptions      `json:"pinataOptions"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

type pinOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// NewGatewayBackend validates cfg and returns a GatewayBackend.
func NewGatewayBackend(cfg GatewayConfig) (*GatewayBackend, error) {
	for name, raw := range map[string]string{"pin URL": cfg.PinURL, "gateway URL": cfg.GatewayURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GatewayBackend{
		pinURL:     cfg.PinURL,
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		jwt:        cfg.JWT,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Put pins data, which must be a JSON document.
func (g *GatewayBackend) Put(ctx context.Context, data []byte) (Address, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("gateway backend only pins JSON documents")
	}
	body, err := json.Marshal(pinRequest{
		Content:  data,
		Metadata: pinMetadata{Name: "exam-" + string(ContentAddress(data))[:12]},
		Options:  pinOptions{CIDVersion: 1},
	})
	if err != nil {
		return "", fmt.Errorf("marshal pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.pinURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+g.jwt)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", NewUnreachableError(err, "pin request")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "pin"); err != nil {
		return "", err
	}

	var pr pinResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&pr); err != nil {
		return "", NewMalformedResponseError(err, "decode pin response")
	}
	if pr.IpfsHash == "" {
		return "", NewMalformedResponseError(nil, "pin response carries no IpfsHash")
	}
	return Address(pr.IpfsHash), nil
}

// Get reads the document at addr from the gateway.
func (g *GatewayBackend) Get(ctx context.Context, addr Address) ([]byte, error) {
	u := g.gatewayURL + "/ipfs/" + url.PathEscape(string(addr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, NewUnreachableError(err, "gateway request")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "gateway"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, NewUnreachableError(err, "read gateway response")
	}
	return data, nil
}

func checkStatus(resp *http.Response, what string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return NewNotFoundError(what + " returned 404")
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return NewUnreachableError(nil, fmt.Sprintf("%s returned %d", what, resp.StatusCode))
	default:
		return NewMalformedResponseError(nil, fmt.Sprintf("%s returned unexpected status %d", what, resp.StatusCode))
	}
}
