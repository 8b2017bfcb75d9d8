// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/dynq/internal/info"
)

func TestStatusRoutes(t *testing.T) {
	t.Parallel()

	srv := newServer(t.Context(), &Config{DisableStartupMessage: true, HTTPPort: 3000})

	for _, path := range []string{"/-/healthz", "/-/ready"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
			defer response.Body.Close()

			require.Equal(t, http.StatusOK, response.StatusCode)
			var status statusResponse
			require.NoError(t, json.NewDecoder(response.Body).Decode(&status))
			assert.Equal(t, statusResponse{Status: "OK", Name: info.AppName, Version: info.Version}, status)
		})
	}
}

func TestAddRoute(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		handlerErr      error
		expectedStatus  int
		expectedMessage string
	}{
		"success": {
			expectedStatus: http.StatusNoContent,
		},
		"fiber error keeps its code": {
			handlerErr:      fiber.NewError(http.StatusBadRequest, "bad payload"),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "bad payload",
		},
		"generic error": {
			handlerErr:      assert.AnError,
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: "error processing request",
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t.Context(), &Config{DisableStartupMessage: true, HTTPPort: 3000})
			srv.AddRoute(http.MethodPost, "/test", func(_ context.Context, headers http.Header, body []byte) error {
				assert.Equal(t, "test body", string(body))
				assert.Equal(t, "value", headers.Get("X-Test"))
				return test.handlerErr
			})

			request := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("test body"))
			request.Header.Set("X-Test", "value")
			response, err := srv.app.Test(request)
			require.NoError(t, err)
			defer response.Body.Close()

			assert.Equal(t, test.expectedStatus, response.StatusCode)
			if test.expectedMessage != "" {
				body, err := io.ReadAll(response.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), test.expectedMessage)
			}
		})
	}
}

func TestAddJSONRoute(t *testing.T) {
	t.Parallel()

	srv := newServer(t.Context(), &Config{DisableStartupMessage: true, HTTPPort: 3000})
	srv.AddJSONRoute(http.MethodGet, "/items", func(context.Context) (any, error) {
		return []map[string]any{{"id": "first"}}, nil
	})
	srv.AddJSONRoute(http.MethodGet, "/broken", func(context.Context) (any, error) {
		return nil, assert.AnError
	})

	response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/items", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"first"}]`, string(body))

	response, err = srv.app.Test(httptest.NewRequest(http.MethodGet, "/broken", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
}

func TestStartAndStop(t *testing.T) {
	t.Setenv("HTTP_PORT", "38291")
	t.Setenv("HTTP_HOST", "127.0.0.1")

	srv, err := NewServer(t.Context())
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	require.EventuallyWithT(t, func(c *assert.CollectT) {
		response, err := http.Get("http://127.0.0.1:38291/-/healthz")
		if !assert.NoError(c, err) {
			return
		}
		defer response.Body.Close()
		assert.Equal(c, http.StatusOK, response.StatusCode)
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.NoError(t, <-errChan)
}
