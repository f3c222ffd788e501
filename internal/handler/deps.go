package handler

import (
	"ticketchat/internal/app/chat"
	"ticketchat/internal/configs"
)

// AppDeps bundles what the HTTP handlers need.
type AppDeps struct {
	Chat   *chat.Service
	Config *configs.AppConfig
}
