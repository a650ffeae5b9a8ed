package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	cmdCommon "github.com/vigild/vigil/cmd/common"
	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/pkg/vigilcli"
)

func attach(ctx *cli.Context) error {
	client, err := getClient(ctx, "attach")
	if err != nil {
		return nil
	}
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "attach", "client-status", err)
		return nil
	}
	switch st.State {
	case "running", "paused", "recovering", "backgrounded":
	default:
		fmt.Println("no active session to attach to")
		return nil
	}

	totalSec := st.ElapsedSec + st.RemainingSec
	fmt.Println(">> Attached to vigil session <<")
	txt := fmt.Sprintf(`
Session Info
State`+"\t\t"+`: %s
Duration`+"\t"+`: %s
Executions`+"\t"+`: %d
`,
		st.State,
		formatSeconds(totalSec),
		st.ExecutionCount,
	)
	fmt.Println(txt)

	rr := time.Millisecond * 150
	p := mpb.New(mpb.WithWidth(64), mpb.WithRefreshRate(rr))
	bar := cmdCommon.InitBar(p, "", totalSec)
	bar.SetCurrent(st.ElapsedSec)

	attachCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = client.Attach(attachCtx, sessionHandlers(bar, totalSec, cancel))
	if err != nil && err != context.Canceled {
		cmdCommon.PrintRuntimeErr(ctx, "attach", "client-attach", err)
	}
	p.Wait()
	return nil
}

// sessionHandlers drives the progress bar from session push notifications
// and cancels the attach loop once the session completes or goes terminal.
func sessionHandlers(bar *mpb.Bar, totalSec int64, cancel context.CancelFunc) *vigilcli.AttachHandlers {
	return &vigilcli.AttachHandlers{
		OnStatus: func(st *common.StatusResult) {
			bar.SetCurrent(st.ElapsedSec)
			switch st.State {
			case "completed":
				bar.SetCurrent(totalSec)
				cancel()
			case "error", "idle":
				bar.Abort(false)
				cancel()
			}
		},
		OnError: func(n *common.ErrorNotification) {
			fmt.Printf("session error: %s\n", n.Error.Error())
		},
		OnComplete: func(n *common.CompleteNotification) {
			bar.SetCurrent(totalSec)
			cancel()
		},
	}
}
