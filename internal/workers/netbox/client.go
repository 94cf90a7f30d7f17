package netbox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	pageLimit = 1000
	maxPages  = 10000
)

// apiClient is a minimal NetBox REST client covering the endpoints the worker needs.
type apiClient struct {
	baseURL    string
	token      string
	sessionKey string
	http       *http.Client
}

func newAPIClient(baseURL, token string, verifySSL bool) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opted out
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

// nestedRef is the short representation NetBox uses for related objects.
type nestedRef struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Display string `json:"display"`
}

type choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type device struct {
	ID         int             `json:"id"`
	Name       *string         `json:"name"`
	Platform   json.RawMessage `json:"platform"`
	DeviceType *struct {
		Model string `json:"model"`
	} `json:"device_type"`
	Status *choice `json:"status"`
}

type virtualMachine struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Status *choice    `json:"status"`
	Device *nestedRef `json:"device"`
	VCPUs  *float64   `json:"vcpus"`
	Memory *int       `json:"memory"`
}

type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// openSession exchanges the user's private key for a session key used to read secrets.
func (c *apiClient) openSession(ctx context.Context, privateKey string) error {
	form := url.Values{"private_key": {privateKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/secrets/get-session-key/",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		SessionKey string `json:"session_key"`
	}
	if err := c.do(req, &body); err != nil {
		return err
	}
	if body.SessionKey == "" {
		return fmt.Errorf("empty session key in response")
	}
	c.sessionKey = body.SessionKey
	return nil
}

func (c *apiClient) devices(ctx context.Context) ([]device, error) {
	return list[device](ctx, c, "/api/dcim/devices/")
}

func (c *apiClient) virtualMachines(ctx context.Context) ([]virtualMachine, error) {
	return list[virtualMachine](ctx, c, "/api/virtualization/virtual-machines/")
}

// list follows NetBox pagination until the last page.
func list[T any](ctx context.Context, c *apiClient, path string) ([]T, error) {
	next := fmt.Sprintf("%s%s?limit=%d", c.baseURL, path, pageLimit)
	var items []T

	for pages := 0; next != ""; pages++ {
		if pages >= maxPages {
			return items, fmt.Errorf("pagination of %s did not terminate", path)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return items, fmt.Errorf("failed to build request: %w", err)
		}

		var p page[T]
		if err := c.do(req, &p); err != nil {
			return items, err
		}
		items = append(items, p.Results...)

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return items, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.sessionKey != "" {
		req.Header.Set("X-Session-Key", c.sessionKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s returned %s: %s", req.URL.Path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// platformName accepts both the nested object form and a bare string.
func platformName(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}

	var ref nestedRef
	if err := json.Unmarshal(raw, &ref); err == nil {
		if ref.Name != "" {
			return ref.Name
		}
		return ref.Display
	}
	return ""
}
