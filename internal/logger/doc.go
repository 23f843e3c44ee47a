// Package logger wraps a zap sugared logger. A global logger is configured
// once at startup; request and service code carries a scoped logger on its
// context and logs through the package helpers.
package logger
