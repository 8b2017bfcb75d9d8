// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/dynq/internal/info"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	loggerName = "dynq:server"
)

type Server interface {
	// AddRoute registers a handler receiving the raw request. A nil error answers 204, a
	// *fiber.Error answers with its code and any other error with 500.
	AddRoute(method string, path string, handler func(ctx context.Context, headers http.Header, body []byte) error)
	// AddJSONRoute registers a handler whose returned value is sent back as JSON.
	AddJSONRoute(method string, path string, handler func(ctx context.Context) (any, error))
	Start() error
	Stop() error
	StartAsync(ctx context.Context)
}

type impServer struct {
	Config

	app *fiber.App
}

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

func NewServer(ctx context.Context) (Server, error) {
	cfg, err := LoadServerConfig()
	if err != nil {
		return nil, err
	}

	return newServer(ctx, cfg), nil
}

func newServer(ctx context.Context, cfg *Config) *impServer {
	app := fiber.New(fiber.Config{
		AppName:               info.AppName,
		DisableStartupMessage: cfg.DisableStartupMessage,
		Immutable:             true,
	})
	log := logger.FromContext(ctx)
	app.Use(logger.RequestLogger(log, "/-/"))

	statusRoutes(app, info.AppName, info.Version)

	return &impServer{
		app:    app,
		Config: *cfg,
	}
}

func (s *impServer) AddRoute(method string, path string, handler func(ctx context.Context, headers http.Header, body []byte) error) {
	s.app.Add(method, path, func(ctx *fiber.Ctx) error {
		if err := handler(ctx.UserContext(), ctx.GetReqHeaders(), ctx.Body()); err != nil {
			return errorResponse(ctx, err)
		}
		return ctx.SendStatus(http.StatusNoContent)
	})
}

func (s *impServer) AddJSONRoute(method string, path string, handler func(ctx context.Context) (any, error)) {
	s.app.Add(method, path, func(ctx *fiber.Ctx) error {
		body, err := handler(ctx.UserContext())
		if err != nil {
			return errorResponse(ctx, err)
		}
		return ctx.JSON(body)
	})
}

func (s *impServer) Start() error {
	if err := s.app.Listen(fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

func (s *impServer) Stop() error {
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

func (s *impServer) StartAsync(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName)
	go func() {
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}

func errorResponse(ctx *fiber.Ctx, err error) error {
	statusCode := http.StatusInternalServerError
	message := "error processing request"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		statusCode = fiberErr.Code
		message = fiberErr.Message
	}

	return ctx.Status(statusCode).JSON(fiber.Map{
		"statusCode": statusCode,
		"error":      http.StatusText(statusCode),
		"message":    message,
	})
}
