// Package debug provides small introspection helpers for the CLI, mirroring
// the teacher's internal/debug package referenced from
// cli/ubft/cmd/shard_node_run.go as debug.ReadBuildInfo().
package debug

import "runtime/debug"

// ReadBuildInfo returns a short "version (revision)" string derived from the
// Go module build info embedded in the binary, or "unknown" if unavailable
// (e.g. when built without module mode).
func ReadBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	version := info.Main.Version
	if version == "" {
		version = "(devel)"
	}
	revision := "unknown"
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			revision = s.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		}
	}
	return version + " (" + revision + ")"
}
