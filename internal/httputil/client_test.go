package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Bounded Reader Tests
// =============================================================================

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("hello world"), 5)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if !truncated {
		t.Error("truncated = false, want true")
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}

	data, truncated, err = ReadAllWithLimit(strings.NewReader("hi"), 5)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if truncated {
		t.Error("truncated = true, want false")
	}
	if string(data) != "hi" {
		t.Errorf("data = %q, want hi", data)
	}
}

func TestReadAllWithLimit_InvalidLimit(t *testing.T) {
	if _, _, err := ReadAllWithLimit(strings.NewReader("x"), 0); err == nil {
		t.Error("expected error for zero limit")
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("123456"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("ReadAllStrict() error = %v, want ErrBodyTooLarge", err)
	}
	data, err := ReadAllStrict(strings.NewReader("12345"), 5)
	if err != nil {
		t.Fatalf("ReadAllStrict() error = %v", err)
	}
	if string(data) != "12345" {
		t.Errorf("data = %q, want 12345", data)
	}
}

// =============================================================================
// DecodeResponse Tests
// =============================================================================

func TestDecodeResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	var result map[string]string
	if err := DecodeResponse(resp, &result); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	if result["message"] != "hello" {
		t.Errorf("result[message] = %s, want hello", result["message"])
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	if err == nil {
		t.Fatal("DecodeResponse() should return error for 4xx status")
	}
	if !strings.Contains(err.Error(), "bad request") {
		t.Errorf("error = %v, want body in message", err)
	}
}
