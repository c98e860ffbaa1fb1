package storage

import (
	"context"
	"strings"
	"testing"
)

func TestJoinPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"empty base", "", "a.json", ""},
		{"empty key", "https://cdn.example.com", "", ""},
		{"host only", "https://cdn.example.com", "reports/a.json", "https://cdn.example.com/reports/a.json"},
		{"base with path", "https://cdn.example.com/p3bl/", "/reports/a.json", "https://cdn.example.com/p3bl/reports/a.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinPublicURL(tt.base, tt.key); got != tt.want {
				t.Errorf("joinPublicURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("https://cdn.example.com")
	res, err := s.Put(context.Background(), "k.json", "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if res.Location != "https://cdn.example.com/k.json" {
		t.Errorf("Location = %q", res.Location)
	}
	if data, ok := s.Get("k.json"); !ok || string(data) != `{"a":1}` {
		t.Errorf("Get() = %q, %v", data, ok)
	}
	if err := s.Delete(context.Background(), "k.json"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := s.Get("k.json"); ok {
		t.Error("object still present after Delete")
	}
}

func TestNewR2StoreRequiresSettings(t *testing.T) {
	if _, err := NewR2Store(context.Background(), R2Config{BucketName: "b"}); err == nil {
		t.Error("NewR2Store() error = nil, wantErr true")
	}
}
