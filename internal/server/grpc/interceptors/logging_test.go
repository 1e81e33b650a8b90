package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

func mockHandler(_ context.Context, _ interface{}) (interface{}, error) {
	return "success", nil
}

func errorHandler(code codes.Code, msg string) grpc.UnaryHandler {
	return func(_ context.Context, _ interface{}) (interface{}, error) {
		return nil, status.Error(code, msg)
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestLoggingInterceptor_Levels(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		handler   grpc.UnaryHandler
		wantLevel string
		wantCode  string
	}{
		{"success", "/test.Service/Method", mockHandler, "info", "OK"},
		{"health probe", "/grpc.health.v1.Health/Check", mockHandler, "debug", "OK"},
		{"not found", "/test.Service/Method", errorHandler(codes.NotFound, "missing"), "warn", "NotFound"},
		{"unauthenticated", "/test.Service/Method", errorHandler(codes.Unauthenticated, "no"), "warn", "Unauthenticated"},
		{"internal", "/test.Service/Method", errorHandler(codes.Internal, "boom"), "error", "Internal"},
		{"unavailable", "/test.Service/Method", errorHandler(codes.Unavailable, "down"), "error", "Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			interceptor := LoggingInterceptor()

			_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, tt.handler)
			if tt.wantCode == "OK" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantCode, entry["code"])
			assert.Equal(t, tt.method, entry["method"])
			assert.Equal(t, "grpc", entry["component"])
		})
	}
}

func TestLoggingInterceptor_PreservesResponseAndError(t *testing.T) {
	interceptor := LoggingInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}

	resp, err := interceptor(context.Background(), nil, info, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)

	resp, err = interceptor(context.Background(), nil, info, errorHandler(codes.PermissionDenied, "denied"))
	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "denied", st.Message())
}

func TestStreamLoggingInterceptor(t *testing.T) {
	buf := captureLogs(t)
	interceptor := StreamLoggingInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	err := interceptor(nil, nil, info, func(_ interface{}, _ grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client went away")
	})
	require.Error(t, err)

	entry := lastEntry(t, buf)
	assert.Equal(t, "gRPC stream completed", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "Canceled", entry["code"])
}

func TestRecoveryInterceptor(t *testing.T) {
	captureLogs(t)
	interceptor := RecoveryInterceptor()

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Panics"},
		func(_ context.Context, _ interface{}) (interface{}, error) {
			panic("boom")
		})

	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}
