// Package version provides build-time metadata for the coursehub service.
// These variables are populated via -ldflags when the binary is built.
package version

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the semantic version or git commit hash (e.g., "v1.0.0" or "a1b2c3d").
	// Set via: -ldflags "-X coursehub/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the ISO 8601 UTC timestamp when the binary was built.
	// Set via: -ldflags "-X coursehub/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the git commit SHA of the source code.
	// Set via: -ldflags "-X coursehub/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata and the identity of this process. InstanceID
// distinguishes replicas that share one rate-limit store.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata and runtime information.
// Instance ID and hostname are computed once on first call and cached.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("coursehub version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent identifies outbound requests made by a coursehub binary.
func (i Info) UserAgent(component string) string {
	return fmt.Sprintf("coursehub-%s/%s", component, i.Version)
}

// LogAttrs returns the fields attached to every log record. Empty values
// are omitted.
func (i Info) LogAttrs() []any {
	var attrs []any
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("version", i.Version)
	add("git_commit", i.GitCommit)
	add("build_date", i.BuildDate)
	add("instance_id", i.InstanceID)
	return attrs
}
