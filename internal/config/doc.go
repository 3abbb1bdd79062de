// Package config loads the roster configuration file.
//
// YAML is the default format; a .toml extension selects TOML. ${VAR}
// references are expanded from the environment before parsing, duration
// fields are written as strings ("24h", "10s"), and unset fields receive
// defaults before validation.
package config
