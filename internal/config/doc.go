// Package config loads device profiles and runtime settings.
//
// A device profile describes the simulated device: its queue families and the
// limits the validators enforce. Profiles are CUE files unified with the
// embedded #Profile schema, so a profile only needs to state what differs
// from the defaults and unknown fields are rejected.
//
// Runtime settings (database path, profile path, wait timeout, log level)
// come from flags, QSYNC_* environment variables, and an optional YAML config
// file, resolved through viper.
package config
