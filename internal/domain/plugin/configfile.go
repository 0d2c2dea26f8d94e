package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
)

// fileConfig is the on-disk schema for data-only plugins. Timings are
// declared in milliseconds, matching the launch tunables users already know.
type fileConfig struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	WmClass     []string `yaml:"wmClass"`

	Launch struct {
		Executables      []string            `yaml:"executables"`
		Flags            []string            `yaml:"flags"`
		ConditionalFlags map[string][]string `yaml:"conditionalFlags"`
	} `yaml:"launch"`

	Features struct {
		IsSingleInstance   bool  `yaml:"isSingleInstance"`
		AutoRestore        *bool `yaml:"autoRestore"` // omitted means true
		LaunchTimeoutMs    int64 `yaml:"launchTimeoutMs"`
		GracePeriodMs      int64 `yaml:"gracePeriodMs"`
		TitleSettleDelayMs int64 `yaml:"titleSettleDelayMs"`
	} `yaml:"features"`

	TitlePattern     string          `yaml:"titlePattern"`
	RestoreTimingsMs []int64         `yaml:"restoreTimingsMs"`
	Settings         map[string]bool `yaml:"settings"`
}

func (fc *fileConfig) toPlugin() *Plugin {
	autoRestore := true
	if fc.Features.AutoRestore != nil {
		autoRestore = *fc.Features.AutoRestore
	}
	p := &Plugin{
		Name:             fc.Name,
		DisplayName:      fc.DisplayName,
		Classes:          fc.WmClass,
		Executables:      fc.Launch.Executables,
		Flags:            fc.Launch.Flags,
		ConditionalFlags: fc.Launch.ConditionalFlags,
		TitlePattern:     fc.TitlePattern,
		Settings:         fc.Settings,
		Features: Features{
			SingleInstance:   fc.Features.IsSingleInstance,
			AutoRestore:      autoRestore,
			LaunchTimeout:    time.Duration(fc.Features.LaunchTimeoutMs) * time.Millisecond,
			GracePeriod:      time.Duration(fc.Features.GracePeriodMs) * time.Millisecond,
			TitleSettleDelay: time.Duration(fc.Features.TitleSettleDelayMs) * time.Millisecond,
		},
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	for _, ms := range fc.RestoreTimingsMs {
		p.RestoreTimings = append(p.RestoreTimings, time.Duration(ms)*time.Millisecond)
	}
	return p
}

// Parse decodes one plugin config document.
func Parse(data []byte) (*Plugin, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse plugin config: %w", err)
	}
	if fc.Name == "" {
		return nil, fmt.Errorf("plugin config missing name")
	}
	return fc.toPlugin(), nil
}

// LoadDir registers every <dir>/<plugin>/config.yaml found in the given
// directories, later directories overriding earlier ones by plugin name.
// A malformed config is logged and skipped; it never aborts the load.
func LoadDir(r *Registry, dirs []string, log *logging.Logger) int {
	loaded := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // absent dir is not an error
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name(), "config.yaml")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			p, err := Parse(data)
			if err != nil {
				log.Warn("skipping malformed plugin config",
					zap.String("path", path), zap.Error(err))
				continue
			}
			if err := r.Register(p, nil); err != nil {
				log.Warn("skipping plugin", zap.String("path", path), zap.Error(err))
				continue
			}
			loaded++
		}
	}
	return loaded
}
