// Package logger builds the service-wide zap logger.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// New returns a production JSON logger. Setting LOG_MODE=development switches
// to the human-readable console encoder.
func New() (*zap.Logger, error) {
	build := zap.NewProduction
	if os.Getenv("LOG_MODE") == "development" {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
