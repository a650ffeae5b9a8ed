package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	cmdCommon "github.com/vigild/vigil/cmd/common"
)

const startAtLayout = "2006-01-02 15:04"

var (
	scheduleAt   string
	scheduleIn   string
	scheduleCron string
)

var scheduleFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "at",
		Usage:       "absolute local start time (YYYY-MM-DD HH:MM)",
		Destination: &scheduleAt,
	},
	cli.StringFlag{
		Name:        "in",
		Usage:       "relative start delay (e.g. 2h, 30m)",
		Destination: &scheduleIn,
	},
	cli.StringFlag{
		Name:        "cron",
		Usage:       "recurring 5-field cron expression",
		Destination: &scheduleCron,
	},
}

func schedule(ctx *cli.Context) error {
	set := 0
	for _, v := range []string{scheduleAt, scheduleIn, scheduleCron} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return cmdCommon.PrintErrWithCmdHelp(
			ctx,
			fmt.Errorf("error: exactly one of --at, --in or --cron must be set"),
		)
	}

	var startAt, cronExpr string
	switch {
	case scheduleCron != "":
		if err := validateCron(scheduleCron); err != nil {
			return cmdCommon.PrintErrWithCmdHelp(ctx, err)
		}
		if !hasOccurrenceWithinYear(scheduleCron, time.Now()) {
			return cmdCommon.PrintErrWithCmdHelp(
				ctx,
				fmt.Errorf("error: cron expression %q never fires within the next year", scheduleCron),
			)
		}
		cronExpr = scheduleCron
	case scheduleAt != "":
		t, err := parseStartAt(scheduleAt)
		if err != nil {
			return cmdCommon.PrintErrWithCmdHelp(ctx, err)
		}
		if t.Before(time.Now()) {
			return cmdCommon.PrintErrWithCmdHelp(
				ctx,
				fmt.Errorf("error: scheduled time %q is in the past", scheduleAt),
			)
		}
		startAt = t.UTC().Format(time.RFC3339)
	case scheduleIn != "":
		t, err := parseStartIn(scheduleIn)
		if err != nil {
			return cmdCommon.PrintErrWithCmdHelp(ctx, err)
		}
		startAt = t.UTC().Format(time.RFC3339)
	}

	client, err := getClient(ctx, "schedule")
	if err != nil {
		return nil
	}
	defer client.Close()

	res, err := client.Schedule(startAt, cronExpr)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "schedule", "client-schedule", err)
		return nil
	}
	fmt.Printf("scheduled %s\n", res.ScheduleID)
	if res.CronExpr != "" {
		fmt.Printf("recurring\t: %s\n", res.CronExpr)
	}
	fmt.Printf("next start\t: %s (%s)\n",
		res.TriggerAt.Local().Format(startAtLayout),
		humanize.Time(res.TriggerAt),
	)
	return nil
}

func unschedule(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return cmdCommon.PrintErrWithCmdHelp(
			ctx,
			fmt.Errorf("no schedule id provided"),
		)
	} else if id == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := getClient(ctx, "unschedule")
	if err != nil {
		return nil
	}
	defer client.Close()
	if err := client.Unschedule(id); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "unschedule", "client-unschedule", err)
		return nil
	}
	fmt.Printf("unscheduled %s\n", id)
	return nil
}

func schedules(ctx *cli.Context) error {
	client, err := getClient(ctx, "schedules")
	if err != nil {
		return nil
	}
	defer client.Close()
	res, err := client.Schedules()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "schedules", "client-schedules", err)
		return nil
	}
	if len(res.Schedules) == 0 {
		fmt.Println("no pending schedules")
		return nil
	}
	for _, s := range res.Schedules {
		line := fmt.Sprintf("%s\t%s (%s)",
			s.ScheduleID,
			s.TriggerAt.Local().Format(startAtLayout),
			humanize.Time(s.TriggerAt),
		)
		if s.CronExpr != "" {
			line += "\tcron: " + s.CronExpr
		}
		fmt.Println(line)
	}
	return nil
}

// parseStartAt validates and parses a --at value.
// Returns the parsed time or an error with the expected format.
func parseStartAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("error: invalid --at format, expected YYYY-MM-DD HH:MM")
	}
	t, err := time.ParseInLocation(startAtLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("error: invalid --at format, expected YYYY-MM-DD HH:MM")
	}
	return t, nil
}

// parseStartIn validates a --in duration string and returns the resolved
// absolute time. Valid formats: Go duration syntax (e.g., "2h", "30m",
// "1h30m", "45s"). Zero durations resolve to now (immediate start).
func parseStartIn(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("error: invalid --in duration, expected format like 2h, 30m, or 1h30m (days not supported — use 24h)")
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("error: invalid --in duration, expected format like 2h, 30m, or 1h30m (days not supported — use 24h)")
	}
	return time.Now().Add(d), nil
}

// validateCron checks if the --cron expression is valid.
// Enforces exactly 5 fields (minute hour day-of-month month day-of-week).
func validateCron(expr string) error {
	if expr == "" {
		return fmt.Errorf("error: invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	// Enforce exactly 5 fields — gronx.IsValid also accepts 6-field (with seconds).
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("error: invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	if !gronx.IsValid(expr) {
		return fmt.Errorf("error: invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	return nil
}

// hasOccurrenceWithinYear checks if a cron expression has any occurrence
// within 1 year from the given time. Returns false for invalid expressions
// or if no occurrence exists within the 1-year window.
func hasOccurrenceWithinYear(expr string, from time.Time) bool {
	next, err := gronx.NextTickAfter(expr, from, false)
	if err != nil {
		return false
	}
	return next.Before(from.Add(365 * 24 * time.Hour))
}
