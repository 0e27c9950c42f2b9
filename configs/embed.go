// Package configs provides embedded configuration templates for skillmind.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they ship inside the binary for every distribution path (go install,
// binary release, package manager).
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/skillmind/config.yaml)
//  3. Project config (.skillmind.yaml)
//  4. Environment variables (SKILLMIND_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by `skillmind config init` at ~/.config/skillmind/config.yaml.
// Holds machine-specific settings: embedding provider/host, server transport.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by `skillmind init` at .skillmind.yaml in the project root.
// Holds project-specific tuning: pattern store thresholds, router tool
// weights, indexer partitions.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
