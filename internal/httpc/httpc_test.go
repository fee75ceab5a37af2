package httpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewRequestSendsJSONBody(t *testing.T) {
	var got string
	var ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		ctype = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req, err := NewRequest(context.Background(), http.MethodPost, srv.URL, []byte(`{"index":1}`))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := Client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if got != `{"index":1}` {
		t.Errorf("body = %q", got)
	}
	if ctype != "application/json" {
		t.Errorf("Content-Type = %q", ctype)
	}
}

func TestNewRequestNilBody(t *testing.T) {
	req, err := NewRequest(context.Background(), http.MethodPost, "http://localhost/api/stop", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.Body != nil {
		t.Error("nil body should produce a request without a body")
	}
	if req.Header.Get("Content-Type") != "" {
		t.Error("Content-Type should be unset without a body")
	}
}

func TestNewClientTimeout(t *testing.T) {
	c := NewClient(2 * time.Second)
	if c.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if Client.Timeout != DefaultTimeout {
		t.Errorf("shared client timeout = %v", Client.Timeout)
	}
}
