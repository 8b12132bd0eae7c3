// Package client is a Go client for the strategy book HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// Client calls the strategy book API.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithHTTPClient routes requests through hc, e.g. an httptest server client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *resty.Client) {
		if hc != nil {
			c.SetTransport(hc.Transport)
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// New returns a client for the API served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stratbook api: %d %s", e.Status, e.Message)
}

// Unwrap maps statuses back onto the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusServiceUnavailable:
		return domain.ErrNotConfigured
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(resp.Status())
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

// File is an image to upload.
type File struct {
	Name string
	Data []byte
}

// MapInput is the editable part of a map.
type MapInput struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// StrategyInput is used for both create and update. MapID is required on
// create and moves the strategy on update.
type StrategyInput struct {
	MapID             string            `json:"map_id,omitempty"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	ChangeNotes       *string           `json:"change_notes,omitempty"`
	ImageDescriptions map[string]string `json:"image_descriptions,omitempty"`
	Images            []File            `json:"-"`
}

// RejectedFile is an image the server refused.
type RejectedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// StrategyResult is returned by create and update.
type StrategyResult struct {
	Strategy      domain.StrategyDetail  `json:"strategy"`
	Version       domain.StrategyVersion `json:"version"`
	CopiedImages  map[string]string      `json:"copied_images"`
	SkippedImages []string               `json:"skipped_images"`
	Rejected      []RejectedFile         `json:"rejected"`
}

// UploadResult is returned by UploadImages.
type UploadResult struct {
	Images   []domain.StrategyImage `json:"images"`
	Rejected []RejectedFile         `json:"rejected"`
}

// ListMaps returns maps whose name or description contains query.
func (c *Client) ListMaps(ctx context.Context, query string) ([]domain.Map, error) {
	var out struct {
		Maps []domain.Map `json:"maps"`
	}
	r := c.req(ctx).SetResult(&out)
	if query != "" {
		r.SetQueryParam("q", query)
	}
	if err := check(r.Get("/api/maps")); err != nil {
		return nil, err
	}
	return out.Maps, nil
}

// CreateMap creates a map.
func (c *Client) CreateMap(ctx context.Context, in MapInput) (domain.Map, error) {
	var out domain.Map
	err := check(c.req(ctx).SetBody(in).SetResult(&out).Post("/api/maps"))
	return out, err
}

// GetMap returns a map with its strategy summaries.
func (c *Client) GetMap(ctx context.Context, id string) (domain.MapDetail, error) {
	var out domain.MapDetail
	err := check(c.req(ctx).SetResult(&out).Get("/api/maps/" + url.PathEscape(id)))
	return out, err
}

// UpdateMap replaces a map's editable fields.
func (c *Client) UpdateMap(ctx context.Context, id string, in MapInput) (domain.Map, error) {
	var out domain.Map
	err := check(c.req(ctx).SetBody(in).SetResult(&out).Put("/api/maps/" + url.PathEscape(id)))
	return out, err
}

// DeleteMap removes a map and everything under it.
func (c *Client) DeleteMap(ctx context.Context, id string) error {
	return check(c.req(ctx).Delete("/api/maps/" + url.PathEscape(id)))
}

// SetMapThumbnail uploads f as the map's thumbnail.
func (c *Client) SetMapThumbnail(ctx context.Context, id string, f File) (domain.Map, error) {
	var out domain.Map
	err := check(c.req(ctx).
		SetFileReader("file", f.Name, bytes.NewReader(f.Data)).
		SetResult(&out).
		Post("/api/maps/" + url.PathEscape(id) + "/thumbnail"))
	return out, err
}

// ListMapStrategies returns summaries of a map's strategies, newest first.
func (c *Client) ListMapStrategies(ctx context.Context, mapID string) ([]domain.StrategySummary, error) {
	var out struct {
		Strategies []domain.StrategySummary `json:"strategies"`
	}
	if err := check(c.req(ctx).SetResult(&out).Get("/api/maps/" + url.PathEscape(mapID) + "/strategies")); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// SearchStrategies matches query against displayed titles and descriptions,
// optionally within one map.
func (c *Client) SearchStrategies(ctx context.Context, query, mapID string) ([]domain.StrategySummary, error) {
	var out struct {
		Strategies []domain.StrategySummary `json:"strategies"`
	}
	r := c.req(ctx).SetResult(&out)
	if query != "" {
		r.SetQueryParam("q", query)
	}
	if mapID != "" {
		r.SetQueryParam("map_id", mapID)
	}
	if err := check(r.Get("/api/strategies")); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// strategyRequest sends in as JSON, or as multipart when it carries images.
func (c *Client) strategyRequest(ctx context.Context, in StrategyInput, out *StrategyResult) (*resty.Request, error) {
	r := c.req(ctx).SetResult(out)
	if len(in.Images) == 0 {
		return r.SetBody(in), nil
	}
	form := map[string]string{"title": in.Title, "description": in.Description}
	if in.MapID != "" {
		form["map_id"] = in.MapID
	}
	if in.ChangeNotes != nil {
		form["change_notes"] = *in.ChangeNotes
	}
	if len(in.ImageDescriptions) > 0 {
		raw, err := json.Marshal(in.ImageDescriptions)
		if err != nil {
			return nil, err
		}
		form["image_descriptions"] = string(raw)
	}
	r.SetFormData(form)
	for _, f := range in.Images {
		r.SetFileReader("images", f.Name, bytes.NewReader(f.Data))
	}
	return r, nil
}

// CreateStrategy creates a strategy with version 1.
func (c *Client) CreateStrategy(ctx context.Context, in StrategyInput) (StrategyResult, error) {
	var out StrategyResult
	r, err := c.strategyRequest(ctx, in, &out)
	if err != nil {
		return out, err
	}
	err = check(r.Post("/api/strategies"))
	return out, err
}

// GetStrategy returns the strategy with its current version and images.
func (c *Client) GetStrategy(ctx context.Context, id string) (domain.StrategyDetail, error) {
	var out domain.StrategyDetail
	err := check(c.req(ctx).SetResult(&out).Get("/api/strategies/" + url.PathEscape(id)))
	return out, err
}

// UpdateStrategy records an edit as a new version.
func (c *Client) UpdateStrategy(ctx context.Context, id string, in StrategyInput) (StrategyResult, error) {
	var out StrategyResult
	r, err := c.strategyRequest(ctx, in, &out)
	if err != nil {
		return out, err
	}
	err = check(r.Put("/api/strategies/" + url.PathEscape(id)))
	return out, err
}

// DeleteStrategy removes a strategy with its versions and images.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	return check(c.req(ctx).Delete("/api/strategies/" + url.PathEscape(id)))
}

// ListVersions returns every version of a strategy, oldest first.
func (c *Client) ListVersions(ctx context.Context, strategyID string) ([]domain.StrategyVersion, error) {
	var out struct {
		Versions []domain.StrategyVersion `json:"versions"`
	}
	if err := check(c.req(ctx).SetResult(&out).Get("/api/strategies/" + url.PathEscape(strategyID) + "/versions")); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

// GetVersion returns one version with its own images.
func (c *Client) GetVersion(ctx context.Context, strategyID string, number int) (domain.VersionDetail, error) {
	var out domain.VersionDetail
	path := "/api/strategies/" + url.PathEscape(strategyID) + "/versions/" + strconv.Itoa(number)
	err := check(c.req(ctx).SetResult(&out).Get(path))
	return out, err
}

// UploadImages attaches images to the strategy's current version.
func (c *Client) UploadImages(ctx context.Context, strategyID string, files []File) (UploadResult, error) {
	var out UploadResult
	r := c.req(ctx).SetResult(&out)
	for _, f := range files {
		r.SetFileReader("images", f.Name, bytes.NewReader(f.Data))
	}
	err := check(r.Post("/api/strategies/" + url.PathEscape(strategyID) + "/images"))
	return out, err
}

// UpdateImageDescription sets an image's alt text; empty clears it.
func (c *Client) UpdateImageDescription(ctx context.Context, imageID, altText string) (domain.StrategyImage, error) {
	var out domain.StrategyImage
	err := check(c.req(ctx).
		SetBody(map[string]string{"alt_text": altText}).
		SetResult(&out).
		Patch("/api/images/" + url.PathEscape(imageID)))
	return out, err
}

// DeleteImage removes one image row.
func (c *Client) DeleteImage(ctx context.Context, imageID string) error {
	return check(c.req(ctx).Delete("/api/images/" + url.PathEscape(imageID)))
}
