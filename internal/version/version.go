// Package version exposes the build version, injected via -ldflags at build time.
package version

var buildVersion string

func Get() string {
	if buildVersion == "" {
		return "unavailable"
	}
	return buildVersion
}
