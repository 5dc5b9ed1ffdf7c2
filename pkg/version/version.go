package version

// Version is the current release of the analyser. Overridden at build time
// with -ldflags "-X .../pkg/version.Version=...".
var Version = "1.2.0"

// Producer identifies the analyser in published run summaries
func Producer() string {
	return "cdr-analyser/" + Version
}
