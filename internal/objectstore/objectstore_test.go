package objectstore

import (
	"context"
	"errors"
	"testing"
)

func TestPublicBase(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Endpoint: "localhost:9000", Bucket: "avatars"}, "http://localhost:9000/avatars"},
		{Config{Endpoint: "s3.example.com", Bucket: "avatars", UseSSL: true}, "https://s3.example.com/avatars"},
		{Config{Endpoint: "s3.example.com", Bucket: "avatars", PublicURL: "https://cdn.example.com/a/"}, "https://cdn.example.com/a"},
	}
	for _, tc := range cases {
		if got := publicBase(tc.cfg); got != tc.want {
			t.Fatalf("publicBase(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
	}
}

func TestMemoryUploadRespectsOverwrite(t *testing.T) {
	m := NewMemory("http://files.local/")
	ctx := context.Background()

	if err := m.Upload(ctx, "u1/avatar.png", []byte("one"), "image/png", false); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := m.Upload(ctx, "u1/avatar.png", []byte("two"), "image/png", false); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := m.Upload(ctx, "u1/avatar.png", []byte("three"), "image/png", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, ok := m.Get("u1/avatar.png")
	if !ok || string(data) != "three" {
		t.Fatalf("unexpected object %q %v", data, ok)
	}
	if got := m.PublicURL("/u1/avatar.png"); got != "http://files.local/u1/avatar.png" {
		t.Fatalf("unexpected url %q", got)
	}

	if err := m.Remove(ctx, "u1/avatar.png", "missing"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := m.Get("u1/avatar.png"); ok {
		t.Fatalf("expected object removed")
	}
}
