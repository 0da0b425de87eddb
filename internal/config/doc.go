// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. It provides type-safe
// access to the settings of the memory model, session builder, quota policy
// and database while keeping configuration details separate from business logic.
package config
