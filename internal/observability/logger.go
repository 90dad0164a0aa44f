// Package observability builds the logger, metrics registry, and HTTP
// health/metrics surface that run alongside the scheduler for the lifetime
// of the process, grounded on compliance/cmd/main.go's zap + gin wiring.
package observability

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger the way compliance/cmd/main.go does:
// production config by default, development config (colored, caller info)
// when the configured level asks for debug output.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
