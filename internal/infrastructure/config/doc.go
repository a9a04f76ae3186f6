// Package config loads and validates the snoozgw service configuration.
//
// Configuration is read from a single YAML file and may be overridden by
// SNOOZGW_* environment variables. The loading order is:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variable overrides
//
// The result is validated before use; an invalid configuration aborts
// startup rather than producing a partially working service.
package config
