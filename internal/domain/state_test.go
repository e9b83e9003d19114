package domain

import (
	"testing"
	"time"
)

func TestModifyPath(t *testing.T) {
	state := NewAgentState("t1")

	if !state.ModifyPath("memory.plan", "write tests") {
		t.Fatalf("memory.plan rejected")
	}
	if state.Memory["plan"] != "write tests" {
		t.Fatalf("unexpected memory: %+v", state.Memory)
	}

	if !state.ModifyPath("variables.retry.max", 3) {
		t.Fatalf("nested path rejected")
	}
	nested, ok := state.Variables["retry"].(map[string]any)
	if !ok || nested["max"] != 3 {
		t.Fatalf("unexpected variables: %+v", state.Variables)
	}
}

func TestModifyPathRejectsInvalid(t *testing.T) {
	state := NewAgentState("t1")

	if state.ModifyPath("plan", "x") {
		t.Fatalf("accepted path without container")
	}
	if state.ModifyPath("control.status", "paused") {
		t.Fatalf("accepted non-editable container")
	}

	state.Memory["leaf"] = "scalar"
	if state.ModifyPath("memory.leaf.deeper", 1) {
		t.Fatalf("traversed through a scalar")
	}
}

func TestExecutionControlTransitions(t *testing.T) {
	ctl := ExecutionControl{TraceID: "t1", Status: ControlStatusRunning}

	now := time.Now().UTC()
	ctl.Pause("s9", now)
	if ctl.Status != ControlStatusPaused || ctl.PausedSpanID != "s9" || ctl.PausedAt == nil {
		t.Fatalf("unexpected pause state: %+v", ctl)
	}

	ctl.Step(5)
	if ctl.Status != ControlStatusStep || ctl.StepCount != 5 || ctl.CurrentStep != 0 {
		t.Fatalf("unexpected step state: %+v", ctl)
	}

	ctl.Resume()
	if ctl.Status != ControlStatusRunning || !ctl.ResumeRequested || ctl.PausedAt != nil {
		t.Fatalf("unexpected resume state: %+v", ctl)
	}
}
