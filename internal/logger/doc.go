// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logger wraps hclog behind the Logger interface used by every dynq component.
// Loggers travel inside contexts: commands store the root logger with WithContext and each
// component derives its own named logger with FromContext(ctx).WithName.
package logger
