// Package settings loads process settings for cmd/authcore: built-in
// defaults, then an optional TOML file, then environment variables.
package settings
