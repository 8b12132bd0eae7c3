package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const mockEndpoint = "https://mock.s3.local"

// NewMockForTests returns a *Store backed by an in-memory fake HTTP transport.
// Only the operations required by the blob store (Head/Get/Put/Delete/List)
// are implemented.
func NewMockForTests(bucket string) *Store {
	if bucket == "" {
		bucket = "mock-bucket"
	}
	rt := &mockTransport{objects: make(map[string]mockObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(mockEndpoint)
	})
	return newStore(client, Config{Bucket: bucket, Region: defaultRegion, Endpoint: mockEndpoint, PathStyle: true})
}

type mockTransport struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		return respond(http.StatusOK, "", m.headers(obj)), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: time.Now().UTC()}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound,
				`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`,
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		resp := respond(http.StatusOK, "", m.headers(obj))
		resp.Body = io.NopCloser(bytes.NewReader(obj.body))
		return resp, nil
	case http.MethodDelete:
		delete(m.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (m *mockTransport) headers(obj mockObject) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"etag123"`},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h.Set("x-amz-meta-"+k, v)
	}
	return h
}

func (m *mockTransport) list(prefix string) *http.Response {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;etag123&quot;</ETag><LastModified>%s</LastModified></Contents>",
			k, len(m.objects[k].body), m.objects[k].modified.Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked decodes a single-chunk aws-chunked payload: <hex>[;sig]\r\n<body>\r\n0...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.SplitN(string(b), "\r\n", 3)
	if len(parts) < 3 {
		return nil, false
	}
	sizeHex, _, _ := strings.Cut(parts[0], ";")
	size, err := strconv.ParseInt(sizeHex, 16, 64)
	if err != nil || size < 0 || int64(len(parts[1])) < size {
		return nil, false
	}
	if !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1][:size]), true
}
