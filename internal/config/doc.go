// Package config defines the settings used by the updates server binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Load reads the YAML file through viper so that every key can be overridden
// with an UPDATES_-prefixed environment variable (UPDATES_STORAGE_BUCKET for
// storage.bucket). Save writes the validated settings back with yaml.v3.
package config
