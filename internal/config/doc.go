// Package config loads the newsletter-digest configuration.
//
// Settings live in a YAML file (config.yaml by default). Secrets are read from
// the process environment; a .env file next to the config file is loaded
// first when present, without overriding variables that are already set.
//
// Relative paths in the file are resolved against the directory that holds the
// config file, and a leading "~" expands to the user's home directory, so the
// tool behaves the same whether it is started by hand or by launchd.
package config
