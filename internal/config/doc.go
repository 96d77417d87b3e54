// Package config loads the handler catalog and runtime settings from YAML and the environment.
package config
