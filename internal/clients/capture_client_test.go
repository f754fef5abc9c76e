package clients

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDownloadRelativeURL(t *testing.T) {
	photo := []byte("panel photo bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/tank_3.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write(photo)
	}))
	defer server.Close()

	client := NewCaptureClient(server.URL, 0)
	got, err := client.Download(context.Background(), "/files/tank_3.jpg")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, photo) {
		t.Errorf("got %q, want %q", got, photo)
	}
}

func TestDownloadAbsoluteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	// Base points somewhere dead; the absolute URL must win.
	client := NewCaptureClient("http://capture.invalid", 0)
	got, err := client.Download(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("got %q", got)
	}
}

func TestDownloadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.jpg":
			http.NotFound(w, r)
		case "/big.jpg":
			w.Write(bytes.Repeat([]byte("x"), 2048))
		}
	}))
	defer server.Close()

	client := NewCaptureClient(server.URL, 1024)

	if _, err := client.Download(context.Background(), "/missing.jpg"); err == nil {
		t.Error("404 download succeeded")
	} else if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want the status code", err)
	}

	if _, err := client.Download(context.Background(), "/big.jpg"); err == nil {
		t.Error("oversized download succeeded")
	} else if !strings.Contains(err.Error(), "size limit") {
		t.Errorf("error = %v, want a size limit failure", err)
	}

	if _, err := client.Download(context.Background(), ""); err == nil {
		t.Error("empty URL succeeded")
	}
}

func TestDownloadRelativeWithoutBase(t *testing.T) {
	client := NewCaptureClient("", 0)
	if _, err := client.Download(context.Background(), "/files/tank.jpg"); err == nil {
		t.Error("relative URL without a base succeeded")
	}
}
