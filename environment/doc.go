// Package environment is the key/value collaborator the emission layer reads
// process metadata from: APP_ENVIRONMENT, APP_VERSION and LOG_SAMPLE_RATE.
//
// A Source overlays process environment variables on an optional YAML file.
// Lookups never fail; an absent key resolves to the caller's default.
package environment
