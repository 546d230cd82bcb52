package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without status code",
			err:  NewInvalidInputError("release id is required"),
			want: "invalid_input: release id is required",
		},
		{
			name: "with status code",
			err:  NewUpstreamStatusError(500, "internal error"),
			want: "upstream_status (status 500): internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NewPermissionDeniedError("import"), http.StatusForbidden},
		{NewInvalidInputError("bad"), http.StatusBadRequest},
		{NewNotFoundError("missing"), http.StatusNotFound},
		{NewRateLimitedError("slow down", 30), http.StatusTooManyRequests},
		{NewTransportError("dial failed", nil), http.StatusBadGateway},
		{NewDecodeError("bad json", nil), http.StatusBadGateway},
		{NewUpstreamStatusError(503, "unavailable"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewTransportError("request failed", inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}

	wrapped := fmt.Errorf("import failed: %w", err)
	var ce *Error
	if !errors.As(wrapped, &ce) {
		t.Fatal("expected errors.As to find *core.Error")
	}
	if ce.Kind != KindUpstreamTransport {
		t.Errorf("Kind = %q, want %q", ce.Kind, KindUpstreamTransport)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NewNotFoundError("x")); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestRateLimitedErrorRetryAfter(t *testing.T) {
	err := NewRateLimitedError("rate limit reached", 42)

	body := err.ToJSON()
	inner, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in JSON body")
	}
	if inner["retry_after"] != 42 {
		t.Errorf("retry_after = %v, want 42", inner["retry_after"])
	}
}
