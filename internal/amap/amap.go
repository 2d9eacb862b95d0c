// Package amap is a small client for the AMap (Gaode) place text search API.
package amap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

const (
	DefaultBaseURL  = "https://restapi.amap.com"
	DefaultPageSize = 10
	DefaultTimeout  = 10 * time.Second

	textSearchPath = "/v5/place/text"
)

// APIError is returned when AMap answers with a non-success status.
type APIError struct {
	Status string
	Info   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amap: api error status=%s info=%s", e.Status, e.Info)
}

// Options configures a Client. Zero fields use the package defaults.
type Options struct {
	APIKey   string
	BaseURL  string
	PageSize int
	Timeout  time.Duration

	// DisableProxy ignores HTTP(S)_PROXY from the environment.
	DisableProxy bool
}

// Client performs place searches.
type Client struct {
	http     *http.Client
	apiKey   string
	baseURL  string
	pageSize int
}

// NewClient creates a Client. The API key is required.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("amap: api key is empty")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.DisableProxy {
		transport.Proxy = nil
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pageSize: opts.PageSize,
	}, nil
}

// Search runs a keyword search in city and returns the first page of
// results. An empty result set is not an error.
func (c *Client) Search(ctx context.Context, query, city string) ([]model.Place, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("keywords", query)
	params.Set("city", city)
	params.Set("page_size", strconv.Itoa(c.pageSize))
	params.Set("page_num", "1")

	endpoint := c.baseURL + textSearchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	appLog.Debug("amap search start", "url", endpoint, "keywords", query, "city", city)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amap: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amap: unexpected HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("amap: response is not valid JSON")
	}

	places, err := decodePlaces(body)
	if err != nil {
		return nil, err
	}

	appLog.Debug("amap search done", "keywords", query, "count", len(places))
	return places, nil
}

func decodePlaces(body []byte) ([]model.Place, error) {
	res := gjson.ParseBytes(body)
	if status := res.Get("status").String(); status != "1" {
		return nil, &APIError{Status: status, Info: res.Get("info").String()}
	}

	pois := res.Get("pois").Array()
	places := make([]model.Place, 0, len(pois))
	for _, p := range pois {
		places = append(places, model.Place{
			Name:    stringField(p, "name"),
			Type:    stringField(p, "type"),
			Address: stringField(p, "address"),
		})
	}
	return places, nil
}

// stringField reads a string field. AMap sends [] instead of "" when a value
// is missing, so anything that is not a string reads as empty.
func stringField(r gjson.Result, key string) string {
	v := r.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

// FormatPlaces renders places one per line as "name | type | address".
func FormatPlaces(places []model.Place) string {
	if len(places) == 0 {
		return "no places found"
	}
	lines := make([]string, 0, len(places))
	for _, p := range places {
		lines = append(lines, p.Name+" | "+p.Type+" | "+p.Address)
	}
	return strings.Join(lines, "\n")
}
