package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverMemory, Bucket: "imgs"}, DriverMemory},
		{Config{Driver: DriverNone}, DriverNone},
		{Config{Driver: DriverS3, Bucket: "imgs", S3: S3Config{AccessKeyID: "AKIA", SecretAccessKey: "SECRET", Endpoint: "http://minio:9000", PathStyle: true}}, DriverS3},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("open %s: %v", tc.want, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, store.Driver())
		}
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpen_S3InheritsBucketAndBaseURL(t *testing.T) {
	store, err := Open(context.Background(), Config{
		Driver:        DriverS3,
		Bucket:        "strategy-images",
		PublicBaseURL: "https://cdn.example.com",
		S3:            S3Config{AccessKeyID: "AKIA", SecretAccessKey: "SECRET"},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Bucket() != "strategy-images" {
		t.Fatalf("unexpected bucket %s", store.Bucket())
	}
	if got := store.PublicURL("maps/m/a.png"); got != "https://cdn.example.com/maps/m/a.png" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestDisabledStoreReportsNotConfigured(t *testing.T) {
	store := Disabled("b")
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader(nil), PutOptions{}); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if _, err := store.Delete(ctx, "k"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if store.PublicURL("k") != "" || store.Bucket() != "b" {
		t.Fatalf("unexpected disabled store values")
	}
}

func TestMockS3RoundTrip(t *testing.T) {
	store := NewMockS3ForTests("imgs")
	ctx := context.Background()
	if _, err := store.Put(ctx, "a.png", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Head(ctx, "a.png"); err != nil {
		t.Fatalf("head: %v", err)
	}
}
