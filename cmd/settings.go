package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli"

	cmdCommon "github.com/vigild/vigil/cmd/common"
	"github.com/vigild/vigil/common"
)

var (
	setDuration    string
	setTick        string
	setExec        string
	setTimeout     string
	setRetryDelay  string
	setCommand     string
	setAutoRestart string
	setMaxRetries  int
	setAdaptive    string
)

var settingsFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "duration, d",
		Usage:       "planned session duration (e.g. 10h, 8h30m)",
		Destination: &setDuration,
	},
	cli.StringFlag{
		Name:        "tick",
		Usage:       "scheduler tick interval (e.g. 30s)",
		Destination: &setTick,
	},
	cli.StringFlag{
		Name:        "exec-interval, e",
		Usage:       "keepalive command execution interval (e.g. 5m)",
		Destination: &setExec,
	},
	cli.StringFlag{
		Name:        "timeout",
		Usage:       "keepalive command timeout (e.g. 30s)",
		Destination: &setTimeout,
	},
	cli.StringFlag{
		Name:        "command, c",
		Usage:       "keepalive command line to invoke",
		Destination: &setCommand,
	},
	cli.StringFlag{
		Name:        "auto-restart",
		Usage:       "restart the session when it completes (on/off)",
		Destination: &setAutoRestart,
	},
	cli.IntFlag{
		Name:        "max-retries, r",
		Usage:       "max automatic retries for failed executions",
		Destination: &setMaxRetries,
	},
	cli.StringFlag{
		Name:        "retry-delay",
		Usage:       "base delay between automatic retries (e.g. 10s)",
		Destination: &setRetryDelay,
	},
	cli.StringFlag{
		Name:        "adaptive-tick",
		Usage:       "widen the tick interval on low power (on/off)",
		Destination: &setAdaptive,
	},
}

func settings(ctx *cli.Context) error {
	client, err := getClient(ctx, "settings")
	if err != nil {
		return nil
	}
	defer client.Close()

	p, err := client.GetSettings()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "settings", "client-get", err)
		return nil
	}

	changed, err := applySettingsFlags(ctx, p)
	if err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, err)
	}
	if !changed {
		printSettings(p)
		return nil
	}

	if err := client.UpdateSettings(p); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "settings", "client-update", err)
		return nil
	}
	fmt.Println("settings updated")
	printSettings(p)
	return nil
}

// applySettingsFlags overlays the set flags onto the current wire payload.
// Reports whether any flag changed the payload.
func applySettingsFlags(ctx *cli.Context, p *common.SettingsPayload) (bool, error) {
	changed := false

	durFlags := []struct {
		name  string
		value string
		dst   *int64
	}{
		{"duration", setDuration, &p.SessionDurationSec},
		{"tick", setTick, &p.TickIntervalSec},
		{"exec-interval", setExec, &p.ExecIntervalSec},
		{"timeout", setTimeout, &p.CommandTimeoutSec},
		{"retry-delay", setRetryDelay, &p.RetryDelaySec},
	}
	for _, f := range durFlags {
		if !ctx.IsSet(f.name) {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil || d <= 0 {
			return false, fmt.Errorf("error: invalid --%s value %q, expected a positive duration like 30s or 5m", f.name, f.value)
		}
		*f.dst = int64(d / time.Second)
		changed = true
	}

	if ctx.IsSet("command") {
		path, args, err := splitCommand(setCommand)
		if err != nil {
			return false, err
		}
		p.CommandPath = path
		p.CommandArgs = args
		changed = true
	}
	if ctx.IsSet("auto-restart") {
		on, err := parseOnOff("auto-restart", setAutoRestart)
		if err != nil {
			return false, err
		}
		p.AutoRestart = on
		changed = true
	}
	if ctx.IsSet("adaptive-tick") {
		on, err := parseOnOff("adaptive-tick", setAdaptive)
		if err != nil {
			return false, err
		}
		p.AdaptiveTick = on
		changed = true
	}
	if ctx.IsSet("max-retries") {
		if setMaxRetries < 0 {
			return false, fmt.Errorf("error: invalid --max-retries value %d, must be zero or positive", setMaxRetries)
		}
		p.MaxRetryAttempts = setMaxRetries
		changed = true
	}
	return changed, nil
}

// splitCommand splits a command line on whitespace into the executable and
// its arguments. Quoting is not interpreted.
func splitCommand(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("error: --command must not be empty")
	}
	return fields[0], fields[1:], nil
}

func parseOnOff(flag, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("error: invalid --%s value %q, expected on or off", flag, value)
}

func printSettings(p *common.SettingsPayload) {
	command := p.CommandPath
	if len(p.CommandArgs) > 0 {
		command += " " + strings.Join(p.CommandArgs, " ")
	}
	if command == "" {
		command = "(not configured)"
	}
	txt := fmt.Sprintf(`
Scheduler Settings
Duration`+"\t"+`: %s
Tick interval`+"\t"+`: %s
Exec interval`+"\t"+`: %s
Timeout`+"\t\t"+`: %s
Command`+"\t\t"+`: %s
Auto restart`+"\t"+`: %t
Max retries`+"\t"+`: %d
Retry delay`+"\t"+`: %s
Adaptive tick`+"\t"+`: %t
`,
		formatSeconds(p.SessionDurationSec),
		formatSeconds(p.TickIntervalSec),
		formatSeconds(p.ExecIntervalSec),
		formatSeconds(p.CommandTimeoutSec),
		command,
		p.AutoRestart,
		p.MaxRetryAttempts,
		formatSeconds(p.RetryDelaySec),
		p.AdaptiveTick,
	)
	fmt.Println(txt)
}
