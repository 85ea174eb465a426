package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStorageService(t *testing.T) {
	svc := NewStorageService("http://localhost:54321/", "test-key", "draft-images")
	if svc.baseURL != "http://localhost:54321" {
		t.Fatalf("expected base url to be trimmed, got %s", svc.baseURL)
	}
	if svc.apiKey != "test-key" {
		t.Fatalf("expected api key to be set, got %s", svc.apiKey)
	}
	if got := svc.PublicURL("d1/a.png"); got != "http://localhost:54321/storage/v1/object/public/draft-images/d1/a.png" {
		t.Fatalf("unexpected public url %s", got)
	}
}

func TestStorageService_Upload(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewStorageService(srv.URL, "key", "bucket")
	url, err := svc.Upload(context.Background(), "d1/img.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/storage/v1/object/bucket/d1/img.png" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("unexpected auth header %s", gotAuth)
	}
	if gotType != "image/png" {
		t.Errorf("unexpected content type %s", gotType)
	}
	if gotBody != "png-bytes" {
		t.Errorf("unexpected body %s", gotBody)
	}
	if url != srv.URL+"/storage/v1/object/public/bucket/d1/img.png" {
		t.Errorf("unexpected url %s", url)
	}
}

func TestStorageService_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Duplicate"}`, http.StatusConflict)
	}))
	defer srv.Close()

	svc := NewStorageService(srv.URL, "key", "bucket")
	if _, err := svc.Upload(context.Background(), "x.png", "image/png", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
