// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the id correlating the log lines of a request. It is echoed back
	// on the response.
	RequestIDHeader = "X-Request-Id"

	RequestReceivedMessage = "request received"
	RequestServedMessage   = "request served"
	RequestFailedMessage   = "request failed"
)

// exchange is the log view of a single HTTP request and of its answer.
type exchange struct {
	Method   string  `json:"method"`
	Path     string  `json:"path"`
	Query    string  `json:"query,omitempty"`
	Remote   string  `json:"remote,omitempty"`
	Status   int     `json:"status,omitempty"`
	Bytes    int     `json:"bytes,omitempty"`
	Duration float64 `json:"durationMs,omitempty"`
}

// RequestID returns the id sent by the caller in RequestIDHeader or a new random one.
func RequestID(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Get(RequestIDHeader)); id != "" {
		return id
	}

	id, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Errorf("generating request id: %w", err))
	}
	return id.String()
}

// RequestLogger returns a fiber handler logging the requests served by the dynq HTTP server.
// Paths starting with one of skipPrefixes, like the status routes, are not logged. A request
// logger named after the request id is stored in the user context so handlers and invalidation
// feeds log with the same id.
func RequestLogger(log Logger, skipPrefixes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		id := RequestID(c)
		c.Set(RequestIDHeader, id)

		reqLog := log.WithName(id)
		c.SetUserContext(WithContext(c.UserContext(), reqLog))

		entry := exchange{
			Method: c.Method(),
			Path:   path,
			Query:  string(c.Request().URI().QueryString()),
			Remote: forwardedFor(c),
		}
		reqLog.Trace(RequestReceivedMessage, "request", entry)

		err := c.Next()
		entry.Status, entry.Bytes = answer(c, err)
		entry.Duration = float64(time.Since(start).Microseconds()) / 1000

		if entry.Status >= fiber.StatusInternalServerError {
			reqLog.Warn(RequestFailedMessage, "request", entry, "error", err)
			return err
		}

		reqLog.Info(RequestServedMessage, "request", entry)
		return err
	}
}

// forwardedFor returns the first client address of X-Forwarded-For, the peer address otherwise.
func forwardedFor(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		client, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(client)
	}
	return c.IP()
}

// answer returns the status and body size sent for the request. Errors returned by the handler
// chain are written later by the fiber error handler, so they are read from err.
func answer(c *fiber.Ctx, err error) (int, int) {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, len(fiberErr.Message)
	case err != nil:
		return fiber.StatusInternalServerError, len(err.Error())
	}

	return c.Response().StatusCode(), len(c.Response().Body())
}
