// Package config loads and validates the YAML settings file shared by the
// terminal UI, the HTTP server and the one-shot CLI commands.
package config
