// Package plugin defines the per-class capability surface consumed by the
// matcher, restorer and launch orchestrator.
//
// A plugin is data plus optional code. The data half (classes, executables,
// launch flags, feature declarations, restore timings) can come from a YAML
// config file; the code half is a set of optional capability interfaces.
// Absence of a capability is typed: a lookup that fails means "unimplemented",
// never a runtime probe.
package plugin

import (
	"time"

	"github.com/thechief/rememberd/internal/shared/types"
)

// Features declares per-plugin behavior switches and timing overrides. Zero
// durations mean "use the daemon default".
type Features struct {
	SingleInstance   bool
	AutoRestore      bool
	LaunchTimeout    time.Duration
	GracePeriod      time.Duration
	TitleSettleDelay time.Duration
}

// Plugin is the declarative half of a per-class capability bundle.
type Plugin struct {
	Name        string
	DisplayName string
	Classes     []string

	// Launch configuration.
	Executables      []string
	Flags            []string
	ConditionalFlags map[string][]string

	Features Features

	// TitlePattern is an optional regex; a hit adds a small identity bonus.
	// Patterns are externally supplied, so evaluation errors contribute
	// nothing rather than failing the match.
	TitlePattern string

	// RestoreTimings declares custom multi-attempt delays for apps that
	// aggressively self-position; one placement attempt is scheduled per
	// entry.
	RestoreTimings []time.Duration

	// Settings are user-togglable booleans gating conditional flags
	// (keys of ConditionalFlags).
	Settings map[string]bool
}

// LaunchContext is handed to launch hooks. Hooks may rewrite the executable,
// argument list and working directory before the spawn.
type LaunchContext struct {
	Class      string
	Instance   *types.InstanceRecord
	Executable string
	Args       []string
	WorkingDir string
}

// PreLauncher runs before the spawn. Typical use: pre-patching a browser's
// on-disk preference file so "restore last session" takes effect after a
// forced kill left a crashed marker.
type PreLauncher interface {
	BeforeLaunch(ctx *LaunchContext) error
}

// PostLauncher runs after a successful spawn.
type PostLauncher interface {
	AfterLaunch(ctx *LaunchContext) error
}

// TitleParser derives extra positional arguments (a document, file or
// project path) from the saved instance.
type TitleParser interface {
	ParseTitleData(inst *types.InstanceRecord) []string
}

// RestoreSkipper suppresses position restoration for windows the plugin
// knows position themselves.
type RestoreSkipper interface {
	ShouldSkipRestore(win types.WindowInfo) bool
}

// Deduplicator collapses saved instances the plugin considers duplicates
// before launch queueing.
type Deduplicator interface {
	DeduplicateInstances(instances []*types.InstanceRecord) []*types.InstanceRecord
}

// IdentitySharer reports that two different classes belong to one identity
// (a launcher class handing off to a main-window class). The orchestrator
// accepts a window of a shared class as an indirect launch match, and class
// migration treats the pair as a recognized transition.
type IdentitySharer interface {
	SharesIdentity(otherClass string) bool
}
