package id

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestTypedIDs(t *testing.T) {
	launch := NewLaunchID()
	if !strings.HasPrefix(launch.String(), LaunchPrefix+"_") {
		t.Errorf("launch id should start with %s_, got %s", LaunchPrefix, launch)
	}

	inst := NewInstanceID()
	if !strings.HasPrefix(inst.String(), InstancePrefix+"_") {
		t.Errorf("instance id should start with %s_, got %s", InstancePrefix, inst)
	}

	parts := strings.SplitN(inst.String(), "_", 2)
	if len(parts) != 2 || !IsValid(parts[1]) {
		t.Errorf("ULID part should be valid: %s", inst)
	}
}
