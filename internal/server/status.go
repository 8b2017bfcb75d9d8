// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"github.com/gofiber/fiber/v2"
)

type statusResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// statusRoutes mounts the liveness and readiness checks under the /-/ prefix.
func statusRoutes(app *fiber.App, serviceName, version string) {
	status := statusResponse{
		Status:  "OK",
		Name:    serviceName,
		Version: version,
	}

	group := app.Group("/-/")
	group.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(status)
	})
	group.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(status)
	})
}
