package version

// Version is the current version of the watch CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/aashish-nayak/WatchTOgather/internal/version.Version=v1.0.0'"
// GoReleaser will automatically set this during release builds.
var Version = "dev"
