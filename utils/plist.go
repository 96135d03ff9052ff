package utils

import (
	"fmt"
	"sort"
	"strings"

	"howett.net/plist"
)

// InstalledApp is one entry of `simctl listapps` output.
type InstalledApp struct {
	BundleID        string `plist:"CFBundleIdentifier"`
	DisplayName     string `plist:"CFBundleDisplayName"`
	BundleName      string `plist:"CFBundleName"`
	ApplicationType string `plist:"ApplicationType"`
}

// ParseInstalledApps decodes the property list printed by `xcrun simctl listapps`.
// The output is usually in OpenStep text format; XML and binary are accepted too.
func ParseInstalledApps(data []byte) ([]InstalledApp, error) {
	raw := map[string]InstalledApp{}
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse app list: %w", err)
	}

	apps := make([]InstalledApp, 0, len(raw))
	for key, app := range raw {
		if app.BundleID == "" {
			app.BundleID = key
		}
		apps = append(apps, app)
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].BundleID < apps[j].BundleID })
	return apps, nil
}

// FindBundleIDByName returns the bundle id whose display name or bundle name matches name.
func FindBundleIDByName(apps []InstalledApp, name string) (string, bool) {
	for _, app := range apps {
		if app.DisplayName == name || app.BundleName == name {
			return app.BundleID, true
		}
	}

	// accessibility labels sometimes differ only in case
	for _, app := range apps {
		if strings.EqualFold(app.DisplayName, name) || strings.EqualFold(app.BundleName, name) {
			return app.BundleID, true
		}
	}

	return "", false
}
