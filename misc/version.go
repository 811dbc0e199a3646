// Package misc keeps build time information about the program.
package misc

// set by linker during build
var (
	appName = "peo"
	version = "dev"
	gitHash = "unknown"
)

// GetAppName returns program name used for logs and report files.
func GetAppName() string {
	return appName
}

// GetVersion returns program version.
func GetVersion() string {
	return version
}

// GetGitHash returns git commit the program was built from.
func GetGitHash() string {
	return gitHash
}
