package main

import (
	"testing"

	"github.com/storkeep/storkeep/pkg/storkeep/runner"
)

func TestStageStatuses(t *testing.T) {
	stages := []runner.StageResult{
		{Name: runner.StagePrereqs, Status: runner.StatusOK},
		{Name: runner.StageVerify, Status: runner.StatusPartial, Detail: "1 still degraded"},
		{Name: runner.StageSmart, Status: runner.StatusSkipped, Detail: "SMART probing disabled"},
		{Name: runner.StageDisk, Status: runner.StatusFailed, Detail: "/mnt/storage at 97.0%"},
	}

	statuses := stageStatuses(stages)

	if len(statuses) != len(stages) {
		t.Fatalf("stageStatuses() returned %d entries, want %d", len(statuses), len(stages))
	}
	for i, stage := range stages {
		if statuses[i].Name != stage.Name {
			t.Errorf("statuses[%d].Name = %q, want %q", i, statuses[i].Name, stage.Name)
		}
		if statuses[i].Status != string(stage.Status) {
			t.Errorf("statuses[%d].Status = %q, want %q", i, statuses[i].Status, stage.Status)
		}
		if statuses[i].Detail != stage.Detail {
			t.Errorf("statuses[%d].Detail = %q, want %q", i, statuses[i].Detail, stage.Detail)
		}
	}
}

func TestStageStatusesEmpty(t *testing.T) {
	statuses := stageStatuses(nil)
	if len(statuses) != 0 {
		t.Errorf("stageStatuses(nil) returned %d entries, want 0", len(statuses))
	}
}
