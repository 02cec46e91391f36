package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// NewVersionHandler serves build and runtime metadata for identity.
func NewVersionHandler(info BuildInfo, identity *appidentity.Identity) http.HandlerFunc {
	name := "flightontime"
	if identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	if info.Version == "" {
		info.Version = "dev"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		deps := crucible.GetVersion()
		writeJSON(w, http.StatusOK, VersionResponse{
			App: AppInfo{
				Name:      name,
				Version:   info.Version,
				Commit:    info.Commit,
				BuildDate: info.BuildDate,
				GoVersion: runtime.Version(),
			},
			Dependencies: DepInfo{
				Gofulmen: deps.Gofulmen,
				Crucible: deps.Crucible,
			},
			Runtime: RuntimeInfo{
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:        runtime.NumCPU(),
				NumGoroutines: runtime.NumGoroutine(),
			},
		})
	}
}
