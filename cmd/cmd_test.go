package cmd

import (
	"testing"

	"github.com/vigild/vigil/cmd/common"
)

func testBuildArgs() BuildArgs {
	return BuildArgs{
		Version:   "0.0.0-test",
		BuildType: "test",
		Date:      "2026-01-01",
		Commit:    "deadbeef",
	}
}

func resetScheduleFlags() {
	scheduleAt = ""
	scheduleIn = ""
	scheduleCron = ""
}

func TestExecuteVersion(t *testing.T) {
	if err := Execute([]string{"vigil", "version"}, testBuildArgs()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if common.VersionCmdStr == "" {
		t.Fatal("expected version string to be populated")
	}
}

func TestExecuteSetsBuildArgs(t *testing.T) {
	bArgs := testBuildArgs()
	if err := Execute([]string{"vigil", "version"}, bArgs); err != nil {
		t.Fatalf("version: %v", err)
	}
	if currentBuildArgs != bArgs {
		t.Fatalf("currentBuildArgs = %+v, want %+v", currentBuildArgs, bArgs)
	}
}

func TestExecuteScheduleRequiresExactlyOneFlag(t *testing.T) {
	defer resetScheduleFlags()

	// No flags
	resetScheduleFlags()
	if err := Execute([]string{"vigil", "schedule"}, testBuildArgs()); err != nil {
		t.Fatalf("schedule without flags should report usage, got %v", err)
	}

	// Conflicting flags
	resetScheduleFlags()
	err := Execute([]string{"vigil", "schedule", "--at", "2030-01-01 09:00", "--cron", "0 9 * * *"}, testBuildArgs())
	if err != nil {
		t.Fatalf("schedule with conflicting flags should report usage, got %v", err)
	}
}

func TestExecuteScheduleRejectsBadCron(t *testing.T) {
	defer resetScheduleFlags()
	resetScheduleFlags()
	err := Execute([]string{"vigil", "schedule", "--cron", "0 9 * *"}, testBuildArgs())
	if err != nil {
		t.Fatalf("bad cron should report usage, got %v", err)
	}
}

func TestExecuteSchedulePastTime(t *testing.T) {
	defer resetScheduleFlags()
	resetScheduleFlags()
	err := Execute([]string{"vigil", "schedule", "--at", "2001-01-01 09:00"}, testBuildArgs())
	if err != nil {
		t.Fatalf("past time should report usage, got %v", err)
	}
}

func TestExecuteUnscheduleWithoutID(t *testing.T) {
	if err := Execute([]string{"vigil", "unschedule"}, testBuildArgs()); err != nil {
		t.Fatalf("unschedule without id should report usage, got %v", err)
	}
}
