package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func passHandler(context.Context, interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, i grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(header, key))
	}
	return i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name      string
		mode, key string
		sent      string
		wantCode  codes.Code
	}{
		{"mode none passes", "none", "secret", "", codes.OK},
		{"unset key passes", "apikey", "", "", codes.OK},
		{"correct key", "apikey", "secret", "secret", codes.OK},
		{"wrong key", "apikey", "secret", "guess", codes.Unauthenticated},
		{"missing metadata", "apikey", "secret", "", codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := APIKeyInterceptor(tt.mode, "x-api-key", tt.key)
			res, err := callWithKey(t, i, "x-api-key", tt.sent)
			if got := status.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v", got, tt.wantCode)
			}
			if tt.wantCode == codes.OK && res != "ok" {
				t.Errorf("result = %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_WrongHeader(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-api-key", "secret")
	if _, err := callWithKey(t, i, "authorization", "secret"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	tests := []struct {
		name      string
		mode, key string
		sent      string
		want      int
	}{
		{"disabled", "none", "secret", "", http.StatusTeapot},
		{"correct", "apikey", "secret", "secret", http.StatusTeapot},
		{"wrong", "apikey", "secret", "nope", http.StatusUnauthorized},
		{"missing", "apikey", "secret", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(tt.mode, "X-Api-Key", tt.key, ok)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/mesh", nil)
			if tt.sent != "" {
				req.Header.Set("X-Api-Key", tt.sent)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestServerCredentials_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := ServerCredentials(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), "")
	if err == nil {
		t.Fatal("expected error for missing key pair")
	}
}
