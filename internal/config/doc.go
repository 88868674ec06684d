// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so secrets (XMTP gateway key, Onit API key, database password) stay in the environment.
package config
