package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrzngr/exvoria-strat-management/internal/adapters/httpapi"
	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/memory"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type apiFixture struct {
	t   *testing.T
	svc *core.Service
	h   http.Handler
}

func newAPI(t *testing.T, opts ...core.Option) apiFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := core.NewPromRecorder(reg)
	require.NoError(t, err)
	opts = append([]core.Option{core.WithBlobStore(blob.NewMemory("strategy-images")), core.WithMetricsRecorder(rec)}, opts...)
	svc := core.NewService(memory.NewStore(), opts...)
	return apiFixture{t: t, svc: svc, h: httpapi.New(svc, httpapi.WithGatherer(reg)).Router()}
}

func (f apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

type part struct {
	field, name string
	data        []byte
}

func (f apiFixture) multipart(method, path string, values map[string]string, files ...part) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(f.t, w.WriteField(k, v))
	}
	for _, p := range files {
		fw, err := w.CreateFormFile(p.field, p.name)
		require.NoError(f.t, err)
		_, err = fw.Write(p.data)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, w.Close())
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type strategyResponse struct {
	Strategy      domain.StrategyDetail  `json:"strategy"`
	Version       domain.StrategyVersion `json:"version"`
	CopiedImages  map[string]string      `json:"copied_images"`
	SkippedImages []string               `json:"skipped_images"`
	Rejected      []struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	} `json:"rejected"`
}

func (f apiFixture) createMap(name string) domain.Map {
	rec := f.do(http.MethodPost, "/api/maps", core.MapInput{Name: name})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Map](f.t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.createMap("Desert Storm")
	rec = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stratbook_service_operation_duration_seconds")
}

func TestMapRoutes(t *testing.T) {
	f := newAPI(t)
	m := f.createMap("Desert Storm")
	f.createMap("Frozen Harbor")

	rec := f.do(http.MethodPost, "/api/maps", core.MapInput{Name: "desert storm"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPost, "/api/maps", core.MapInput{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/maps?q=frozen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct{ Maps []domain.Map }](t, rec)
	require.Len(t, listed.Maps, 1)
	assert.Equal(t, "Frozen Harbor", listed.Maps[0].Name)

	rec = f.do(http.MethodPut, "/api/maps/"+m.ID, core.MapInput{Name: "Desert Storm", Description: "dunes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dunes", decode[domain.Map](t, rec).Description)

	rec = f.multipart(http.MethodPost, "/api/maps/"+m.ID+"/thumbnail", nil, part{"file", "thumb.png", pngData})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decode[domain.Map](t, rec).ThumbnailURL, "maps/"+m.ID+"/")

	rec = f.do(http.MethodGet, "/api/maps/"+m.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.MapDetail](t, rec)
	assert.Equal(t, m.ID, detail.Map.ID)
	assert.Empty(t, detail.Strategies)

	rec = f.do(http.MethodGet, "/api/maps/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	rec = f.do(http.MethodDelete, "/api/maps/"+m.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/maps/"+m.ID+"/strategies", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrategyLifecycle(t *testing.T) {
	f := newAPI(t)
	m := f.createMap("Desert Storm")

	rec := f.multipart(http.MethodPost, "/api/strategies",
		map[string]string{"map_id": m.ID, "title": "Rush A", "description": "fast"},
		part{"images", "a.png", pngData},
		part{"images", "notes.png", []byte("plain text, not an image")},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[strategyResponse](t, rec)
	id := created.Strategy.Strategy.ID
	assert.Equal(t, 1, created.Version.VersionNumber)
	require.Len(t, created.Strategy.Images, 1)
	require.Len(t, created.Rejected, 1)
	assert.Equal(t, "notes.png", created.Rejected[0].Name)
	oldImage := created.Strategy.Images[0].ID

	descriptions, err := json.Marshal(map[string]string{oldImage: "smoke lineup"})
	require.NoError(t, err)
	rec = f.multipart(http.MethodPut, "/api/strategies/"+id,
		map[string]string{"title": "Rush A", "description": "faster", "change_notes": "tweak", "image_descriptions": string(descriptions)},
		part{"images", "b.png", pngData},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[strategyResponse](t, rec)
	assert.Equal(t, 2, updated.Version.VersionNumber)
	require.Len(t, updated.Strategy.Images, 2)
	newImage := updated.CopiedImages[oldImage]
	assert.Equal(t, newImage, updated.Strategy.Images[0].ID)
	assert.Equal(t, "smoke lineup", domain.StringValue(updated.Strategy.Images[0].AltText))

	rec = f.do(http.MethodPut, "/api/strategies/"+id, map[string]any{"title": "Rush A", "description": "json edit"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/strategies/"+id+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[struct{ Versions []domain.StrategyVersion }](t, rec)
	require.Len(t, versions.Versions, 3)

	rec = f.do(http.MethodGet, "/api/strategies/"+id+"/versions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v1 := decode[domain.VersionDetail](t, rec)
	assert.Equal(t, "fast", v1.Version.Description)
	require.Len(t, v1.Images, 1)
	assert.Nil(t, v1.Images[0].AltText, "version 1 keeps its own rows")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/strategies/"+id+"/versions/zero", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/strategies/"+id+"/versions/9", nil).Code)

	rec = f.do(http.MethodGet, "/api/strategies?q=json&map_id="+m.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[struct{ Strategies []domain.StrategySummary }](t, rec)
	require.Len(t, found.Strategies, 1)
	assert.Equal(t, 3, found.Strategies[0].VersionNumber)
	assert.Equal(t, 2, found.Strategies[0].ImageCount)

	rec = f.do(http.MethodGet, "/api/maps/"+m.ID+"/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct{ Strategies []domain.StrategySummary }](t, rec).Strategies, 1)

	rec = f.do(http.MethodDelete, "/api/strategies/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/strategies/"+id, nil).Code)
}

func TestImageRoutes(t *testing.T) {
	f := newAPI(t)
	m := f.createMap("Desert Storm")
	rec := f.do(http.MethodPost, "/api/strategies", map[string]any{"map_id": m.ID, "title": "Rush A"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[strategyResponse](t, rec).Strategy.Strategy.ID

	rec = f.multipart(http.MethodPost, "/api/strategies/"+id+"/images", nil, part{"images", "a.png", pngData})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	uploaded := decode[struct{ Images []domain.StrategyImage }](t, rec)
	require.Len(t, uploaded.Images, 1)
	imageID := uploaded.Images[0].ID

	rec = f.do(http.MethodPatch, "/api/images/"+imageID, map[string]string{"alt_text": "entry path"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "entry path", domain.StringValue(decode[domain.StrategyImage](t, rec).AltText))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/images/"+imageID, map[string]string{}).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/strategies/"+id+"/images", map[string]string{}).Code)

	rec = f.do(http.MethodDelete, "/api/images/"+imageID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/images/"+imageID, nil).Code)
}

func TestUnconfiguredBlobStoreIs503(t *testing.T) {
	f := newAPI(t, core.WithBlobStore(blob.Disabled("")))
	m := f.createMap("Desert Storm")
	rec := f.multipart(http.MethodPost, "/api/strategies",
		map[string]string{"map_id": m.ID, "title": "Rush A"},
		part{"images", "a.png", pngData},
	)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "not configured"), rec.Body.String())
}

// offlineAfter accepts limit writes, then fails every Put.
type offlineAfter struct {
	blob.Store
	limit int
}

func (b *offlineAfter) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if b.limit == 0 {
		return blob.Info{}, errors.New("bucket offline")
	}
	b.limit--
	return b.Store.Put(ctx, key, r, opts)
}

type uploadFailureBody struct {
	Error    string   `json:"error"`
	Failed   string   `json:"failed"`
	Stored   []string `json:"stored"`
	Rejected []struct {
		Name string `json:"name"`
	} `json:"rejected"`
	Strategy *domain.StrategyDetail `json:"strategy"`
}

func TestStorageFailureNamesFile(t *testing.T) {
	f := newAPI(t, core.WithBlobStore(&offlineAfter{Store: blob.NewMemory("strategy-images"), limit: 1}))
	m := f.createMap("Desert Storm")
	rec := f.multipart(http.MethodPost, "/api/strategies",
		map[string]string{"map_id": m.ID, "title": "Rush A"},
		part{"images", "1.png", pngData},
		part{"images", "notes.txt", []byte("plain text notes")},
		part{"images", "2.png", pngData},
		part{"images", "3.png", pngData},
	)
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	body := decode[uploadFailureBody](t, rec)
	assert.Equal(t, "2.png", body.Failed)
	assert.Contains(t, body.Error, "2.png")
	assert.NotContains(t, body.Error, "bucket offline")
	assert.Equal(t, []string{"1.png"}, body.Stored)
	require.Len(t, body.Rejected, 1)
	assert.Equal(t, "notes.txt", body.Rejected[0].Name)
	require.NotNil(t, body.Strategy)
	require.Len(t, body.Strategy.Images, 1, "the stored file is committed")

	id := body.Strategy.Strategy.ID
	rec = f.multipart(http.MethodPost, "/api/strategies/"+id+"/images", nil, part{"images", "4.png", pngData})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body = decode[uploadFailureBody](t, rec)
	assert.Equal(t, "4.png", body.Failed)
	assert.Empty(t, body.Stored)
	assert.Nil(t, body.Strategy)
}

func TestUploadLimits(t *testing.T) {
	f := newAPI(t, core.WithUploadConstraints(media.Constraints{MaxBytes: 64}))
	m := f.createMap("Desert Storm")
	big := append(bytes.Clone(pngData), make([]byte, 4096)...)
	rec := f.multipart(http.MethodPost, "/api/strategies",
		map[string]string{"map_id": m.ID, "title": "Rush A"},
		part{"images", "big.png", big},
		part{"images", "ok.png", pngData},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[strategyResponse](t, rec)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "big.png", res.Rejected[0].Name)
	assert.Contains(t, res.Rejected[0].Error, "exceeds 64 bytes")
	assert.Len(t, res.Strategy.Images, 1)

	h := httpapi.New(f.svc, httpapi.WithMaxRequestBytes(256)).Router()
	payload := append([]byte(`{"name":"`), bytes.Repeat([]byte("x"), 1024)...)
	req := httptest.NewRequest(http.MethodPost, "/api/maps", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestInvalidPayloads(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/maps", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.multipart(http.MethodPost, "/api/strategies", map[string]string{"title": "x", "image_descriptions": "not json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/strategies", map[string]any{"map_id": "missing", "title": "Rush A"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
