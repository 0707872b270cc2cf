package main

import (
	"os"
	"time"
)

const defaultStopTimeout = 30 * time.Second

// stopTimeout reads APP_SHUTDOWN_TIMEOUT before the graph is built.
func stopTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("APP_SHUTDOWN_TIMEOUT"))
	if err != nil || d <= 0 {
		return defaultStopTimeout
	}
	return d
}
