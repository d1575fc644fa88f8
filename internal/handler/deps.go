/*
Package handler provides the HTTP handlers and routing setup for the relay server.

This file defines the AppDeps struct, bundling the shared dependencies handlers need.
*/
package handler

import (
	"talkrelay/internal/app/room"
	"talkrelay/internal/configs"
)

// AppDeps carries the application-level dependencies injected into handlers.
type AppDeps struct {
	// Config holds the application's read-only configuration settings.
	Config *configs.AppConfig

	// Registry is the shared room registry both relay kinds join through.
	Registry *room.Registry
}
