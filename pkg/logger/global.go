package logger

import (
	"os"
	"sync"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			defaultLevel := "info"
			if os.Getenv("DEBUG") == "true" {
				defaultLevel = "debug"
			} else if os.Getenv("LOG_LEVEL") != "" {
				defaultLevel = os.Getenv("LOG_LEVEL")
			}

			globalLogger = New(Config{
				Level:  defaultLevel,
				Format: "json",
				Output: "stderr",
			})
		}
	})
	return globalLogger
}

// SetLogger sets the global logger instance
func SetLogger(logger *Logger) {
	globalLogger = logger
}

// WithField adds a field to the global logger
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithError adds an error to the global logger
func WithError(err error) *Logger {
	return GetLogger().WithError(err)
}
