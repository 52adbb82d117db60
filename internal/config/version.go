package config

import (
	"fmt"
	"sort"
	"strings"
)

// CurrentVersion is the config file format written by config.example.yaml
const CurrentVersion = "1.1"

// supportedVersions maps each readable format to what it lacks compared to CurrentVersion
var supportedVersions = map[string]string{
	"1.0": "no redis, mqtt or circuit_breaker sections; they stay disabled",
	"1.1": "",
}

// VersionInfo is decoded first so an unknown format fails before the full parse
type VersionInfo struct {
	Version string `yaml:"version"`
}

// ValidateVersion rejects formats this parser cannot read
func ValidateVersion(fileVersion string) error {
	if _, ok := supportedVersions[fileVersion]; ok {
		return nil
	}
	known := make([]string, 0, len(supportedVersions))
	for v := range supportedVersions {
		known = append(known, v)
	}
	sort.Strings(known)
	return fmt.Errorf("incompatible configuration version: %q (supported: %s)", fileVersion, strings.Join(known, ", "))
}

// UpgradeNote describes what an older format is missing, empty for the current one
func UpgradeNote(fileVersion string) string {
	return supportedVersions[fileVersion]
}
