package email

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleSend(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"to":"buyer@clinic.example","subject":"Order received","body":"thanks"}`, http.StatusOK},
		{"bad address", `{"to":"not-an-address","subject":"x"}`, http.StatusBadRequest},
		{"empty subject", `{"to":"buyer@clinic.example","subject":"  "}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/send", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/send")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestClientSend(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL+"/", srv.Client())

	err := client.Send(context.Background(), Message{To: "buyer@clinic.example", Subject: "hi", Body: "hello"})
	require.NoError(t, err)

	err = client.Send(context.Background(), Message{To: "nobody", Subject: "hi"})
	assert.EqualError(t, err, "email service returned status 400")
}
