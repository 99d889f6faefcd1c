// Package version exposes build metadata injected at link time.
package version

import "fmt"

// Set via -ldflags "-X github.com/sydlexius/releasewire/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)

// UserAgent returns the User-Agent sent to metadata and source services.
func UserAgent() string {
	return fmt.Sprintf("releasewire/%s (+https://github.com/sydlexius/releasewire)", Version)
}
