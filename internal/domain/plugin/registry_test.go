package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechief/rememberd/internal/shared/types"
)

type officeHooks struct{}

func (officeHooks) SharesIdentity(class string) bool {
	return class == "libreoffice-startcenter"
}

func (officeHooks) ParseTitleData(inst *types.InstanceRecord) []string {
	if inst.DocumentPath != "" {
		return []string{inst.DocumentPath}
	}
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Plugin{
		Name:    "libreoffice",
		Classes: []string{"Soffice", "libreoffice-calc", "libreoffice-writer"},
	}, officeHooks{}))

	e, ok := r.ForClass("soffice")
	require.True(t, ok)
	assert.Equal(t, "libreoffice", e.Plugin.Name)

	_, ok = r.ForClass("unknown")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Plugin{Classes: []string{"x"}}, nil))
	assert.Error(t, r.Register(&Plugin{Name: "x"}, nil))
}

func TestSharedIdentity(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Plugin{
		Name:    "libreoffice",
		Classes: []string{"Soffice", "libreoffice-calc"},
	}, officeHooks{}))

	// Same plugin covers both classes.
	assert.True(t, r.SharedIdentity("Soffice", "libreoffice-calc"))
	// Hook-declared identity.
	assert.True(t, r.SharedIdentity("Soffice", "libreoffice-startcenter"))
	assert.False(t, r.SharedIdentity("Soffice", "Code"))
}

func TestCapabilityLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Plugin{
		Name:    "libreoffice",
		Classes: []string{"Soffice"},
	}, officeHooks{}))
	require.NoError(t, r.Register(&Plugin{
		Name:    "dataonly",
		Classes: []string{"Gnome-terminal"},
	}, nil))

	parser, ok := r.TitleParser("Soffice")
	require.True(t, ok)
	args := parser.ParseTitleData(&types.InstanceRecord{DocumentPath: "/tmp/x.ods"})
	assert.Equal(t, []string{"/tmp/x.ods"}, args)

	// Data-only plugin implements nothing.
	_, ok = r.TitleParser("Gnome-terminal")
	assert.False(t, ok)
	_, ok = r.PreLauncher("Gnome-terminal")
	assert.False(t, ok)
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
name: brave
displayName: Brave Browser
wmClass: [Brave-browser]
launch:
  executables: [brave-browser, brave]
  flags: [--restore-last-session]
  conditionalFlags:
    browserSessionRestore: [--restore-last-session]
features:
  isSingleInstance: true
  launchTimeoutMs: 20000
  gracePeriodMs: 45000
restoreTimingsMs: [500, 1500, 3000]
settings:
  browserSessionRestore: true
`)

	p, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "brave", p.Name)
	assert.Equal(t, []string{"Brave-browser"}, p.Classes)
	assert.True(t, p.Features.SingleInstance)
	assert.Equal(t, 20*time.Second, p.Features.LaunchTimeout)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second,
	}, p.RestoreTimings)
	assert.True(t, p.Settings["browserSessionRestore"])
}

func TestParseConfigMissingName(t *testing.T) {
	_, err := Parse([]byte(`wmClass: [X]`))
	assert.Error(t, err)
}
