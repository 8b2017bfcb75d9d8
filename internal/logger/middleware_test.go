// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logLines decodes every JSON line written to buffer.
func logLines(t *testing.T, buffer *bytes.Buffer) []map[string]any {
	t.Helper()

	lines := make([]map[string]any, 0)
	for line := range strings.SplitSeq(strings.TrimSpace(buffer.String()), "\n") {
		if line == "" {
			continue
		}
		entry := make(map[string]any)
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		path      string
		header    http.Header
		handler   fiber.Handler
		status    int
		messages  []string
		requestID string
		remote    string
		bytes     float64
	}{
		"served request": {
			path: "/queries?source=gcp",
			header: http.Header{
				RequestIDHeader:           {"req-1"},
				fiber.HeaderXForwardedFor: {"10.0.0.1, 10.0.0.2"},
			},
			handler: func(c *fiber.Ctx) error {
				return c.SendString("[]")
			},
			status:    http.StatusOK,
			messages:  []string{RequestReceivedMessage, RequestServedMessage},
			requestID: "req-1",
			remote:    "10.0.0.1",
			bytes:     2,
		},
		"client error": {
			path:   "/invalidate",
			header: http.Header{RequestIDHeader: {"req-2"}},
			handler: func(*fiber.Ctx) error {
				return fiber.NewError(http.StatusBadRequest, "bad event")
			},
			status:    http.StatusBadRequest,
			messages:  []string{RequestReceivedMessage, RequestServedMessage},
			requestID: "req-2",
			bytes:     9,
		},
		"handler failure": {
			path:   "/invalidate",
			header: http.Header{RequestIDHeader: {"req-3"}},
			handler: func(*fiber.Ctx) error {
				return errors.New("boom")
			},
			status:    http.StatusInternalServerError,
			messages:  []string{RequestReceivedMessage, RequestFailedMessage},
			requestID: "req-3",
			bytes:     4,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			buffer := new(bytes.Buffer)
			log := NewLogger(buffer)
			log.SetLevel(TRACE)

			app := fiber.New()
			app.Use(RequestLogger(log, "/-/"))
			app.All("/*", test.handler)

			req := httptest.NewRequest(http.MethodPost, "http://example.com"+test.path, nil)
			req.Header = test.header
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, test.status, resp.StatusCode)
			assert.Equal(t, test.requestID, resp.Header.Get(RequestIDHeader))

			lines := logLines(t, buffer)
			require.Len(t, lines, len(test.messages))
			for i, message := range test.messages {
				assert.Equal(t, message, lines[i]["@message"])
				assert.Equal(t, test.requestID, lines[i]["@module"])
			}

			completed, ok := lines[1]["request"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, http.MethodPost, completed["method"])
			assert.Equal(t, strings.Split(test.path, "?")[0], completed["path"])
			assert.InDelta(t, float64(test.status), completed["status"], 0)
			assert.InDelta(t, test.bytes, completed["bytes"], 0)
			if test.remote != "" {
				assert.Equal(t, test.remote, completed["remote"])
			}
		})
	}
}

func TestRequestLoggerSkipsPrefixes(t *testing.T) {
	t.Parallel()

	buffer := new(bytes.Buffer)
	log := NewLogger(buffer)
	log.SetLevel(TRACE)

	app := fiber.New()
	app.Use(RequestLogger(log, "/-/"))
	app.Get("/-/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://example.com/-/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(RequestIDHeader))
	assert.Empty(t, buffer.String())
}

func TestRequestLoggerStoresLoggerInContext(t *testing.T) {
	t.Parallel()

	buffer := new(bytes.Buffer)
	log := NewLogger(buffer)

	app := fiber.New()
	app.Use(RequestLogger(log))
	app.Get("/", func(c *fiber.Ctx) error {
		FromContext(c.UserContext()).Info("from handler")
		return c.SendStatus(http.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	generated := resp.Header.Get(RequestIDHeader)
	require.Len(t, generated, 36)

	lines := logLines(t, buffer)
	require.Len(t, lines, 2)
	assert.Equal(t, "from handler", lines[0]["@message"])
	assert.Equal(t, generated, lines[0]["@module"])
	assert.Equal(t, RequestServedMessage, lines[1]["@message"])
}
