package webdav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
)

func TestPutUploadsContentWithAuth(t *testing.T) {
	var gotPaths []string
	var gotBody string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPaths = append(gotPaths, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/backup/db.sql" {
			gotBody = string(body)
			gotAuth = r.Header.Get("Authorization")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "dG9rZW4=", 0)
	err := c.Put(context.Background(), "/backup/db.sql", "-- dump\n", "text/plain")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	// The parent collection marker is created before the upload.
	if len(gotPaths) != 2 || gotPaths[0] != "/backup/.dir" || gotPaths[1] != "/backup/db.sql" {
		t.Errorf("request paths = %v, want [/backup/.dir /backup/db.sql]", gotPaths)
	}
	if gotBody != "-- dump\n" {
		t.Errorf("uploaded body = %q", gotBody)
	}
	if gotAuth != "Basic dG9rZW4=" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestGetDownloadsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote content"))
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 0)
	body, err := c.Get(context.Background(), "/backup/db.sql")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if body != "remote content" {
		t.Errorf("body = %q", body)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusNotFound, apperr.ErrNotFound},
		{http.StatusUnauthorized, apperr.ErrAuthFailed},
		{http.StatusForbidden, apperr.ErrAuthFailed},
	}

	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := New(srv.URL, "token", 0)
		_, err := c.Get(context.Background(), "/x")
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("status %d: error = %v, want %v", tc.status, err, tc.wantErr)
		}
		srv.Close()
	}
}

func TestOtherStatusPreservedAsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 0)
	_, err := c.Get(context.Background(), "/x")

	var transport *apperr.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if transport.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", transport.Status)
	}
}

func TestTimeoutSurfacesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 20*time.Millisecond)
	_, err := c.Get(context.Background(), "/x")
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestDirCreationConflictIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/backup/.dir" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 0)
	if err := c.Put(context.Background(), "/backup/db.sql", "x", "text/plain"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
}
