package iln

// Version information, overridden at build time with -ldflags
var (
	// Version is the release version
	Version = "2.0.0"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)

// UserAgent is sent to the Pro service
func UserAgent() string {
	return "ILN-Client/" + Version
}
