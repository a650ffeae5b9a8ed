package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	cmdCommon "github.com/vigild/vigil/cmd/common"
	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/pkg/vigilcli"
)

// getClient ensures the daemon is up and returns a connected RPC client.
// Errors are already reported to the user; callers should return nil on a
// non-nil error.
func getClient(ctx *cli.Context, cmd string) (*vigilcli.Client, error) {
	if err := vigilcli.EnsureDaemon(); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, cmd, "ensure_daemon", err)
		return nil, err
	}
	client, err := vigilcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, cmd, "new_client", err)
		return nil, err
	}
	return client, nil
}

func start(ctx *cli.Context) error {
	client, err := getClient(ctx, "start")
	if err != nil {
		return nil
	}
	defer client.Close()
	snap, err := client.Start()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "start", "client-start", err)
		return nil
	}
	fmt.Println(">> Session started <<")
	printStatus(snap)
	return nil
}

func pause(ctx *cli.Context) error {
	return simpleCall(ctx, "pause", "session paused", (*vigilcli.Client).Pause)
}

func resume(ctx *cli.Context) error {
	return simpleCall(ctx, "resume", "session resumed", (*vigilcli.Client).Resume)
}

func stop(ctx *cli.Context) error {
	return simpleCall(ctx, "stop", "session stopped", (*vigilcli.Client).Stop)
}

func reset(ctx *cli.Context) error {
	return simpleCall(ctx, "reset", "session reset", (*vigilcli.Client).Reset)
}

func retry(ctx *cli.Context) error {
	return simpleCall(ctx, "retry", "session restarted", (*vigilcli.Client).Retry)
}

func background(ctx *cli.Context) error {
	return simpleCall(ctx, "background", "session backgrounded", (*vigilcli.Client).Background)
}

func foreground(ctx *cli.Context) error {
	return simpleCall(ctx, "foreground", "session foregrounded", (*vigilcli.Client).Foreground)
}

func sleepCmd(ctx *cli.Context) error {
	return simpleCall(ctx, "sleep", "sleep signalled", (*vigilcli.Client).Sleep)
}

func wakeCmd(ctx *cli.Context) error {
	return simpleCall(ctx, "wake", "wake signalled", (*vigilcli.Client).Wake)
}

func lowPower(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, fmt.Errorf("expected on or off"))
	} else if arg == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	on, err := parseOnOff("lowpower", arg)
	if err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, err)
	}
	client, err := getClient(ctx, "lowpower")
	if err != nil {
		return nil
	}
	defer client.Close()
	if err := client.SetLowPower(on); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "lowpower", "client-lowpower", err)
		return nil
	}
	if on {
		fmt.Println("low-power mode on")
	} else {
		fmt.Println("low-power mode off")
	}
	return nil
}

// simpleCall runs a no-argument RPC method and prints a confirmation.
func simpleCall(ctx *cli.Context, cmd, okMsg string, fn func(*vigilcli.Client) error) error {
	client, err := getClient(ctx, cmd)
	if err != nil {
		return nil
	}
	defer client.Close()
	if err := fn(client); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, cmd, "client-"+cmd, err)
		return nil
	}
	fmt.Println(okMsg)
	return nil
}

func status(ctx *cli.Context) error {
	client, err := getClient(ctx, "status")
	if err != nil {
		return nil
	}
	defer client.Close()
	st, err := client.Status()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "status", "client-status", err)
		return nil
	}
	printStatus(st)
	return nil
}

func printStatus(st *common.StatusResult) {
	txt := fmt.Sprintf(`
Session Status
State`+"\t\t"+`: %s
Progress`+"\t"+`: %.1f%%
Elapsed`+"\t\t"+`: %s
Remaining`+"\t"+`: %s
Executions`+"\t"+`: %s
Timing`+"\t\t"+`: %s
`,
		st.State,
		st.Progress*100,
		formatSeconds(st.ElapsedSec),
		formatSeconds(st.RemainingSec),
		humanize.Comma(st.ExecutionCount),
		st.Accuracy,
	)
	fmt.Println(txt)
	if st.SessionID != "" {
		fmt.Printf("Session ID\t: %s\n", st.SessionID)
	}
	if st.State == "running" && st.RemainingSec > 0 {
		end := time.Now().Add(time.Duration(st.RemainingSec) * time.Second)
		fmt.Printf("Session ends %s\n", humanize.Time(end))
	}
	if st.LastError != nil {
		fmt.Printf("Last error\t: %s\n", st.LastError.Error())
		if st.LastError.Suggestion != "" {
			fmt.Printf("Suggestion\t: %s\n", st.LastError.Suggestion)
		}
	}
}

func formatSeconds(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return (time.Duration(sec) * time.Second).String()
}
