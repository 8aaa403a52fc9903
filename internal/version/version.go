package version

// Version is the release of the nsplit binary.
// Set at build time with:
// -ldflags "-X github.com/rxtech-lab/nsplit-trading/internal/version.Version=1.2.3"
// "main" marks a development build.
var Version = "v0.3.0"

// GetVersion returns the release of the binary.
func GetVersion() string {
	return Version
}
