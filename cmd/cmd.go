package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"
	"github.com/vigild/vigil/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

// currentBuildArgs is set by Execute so daemon components can report the
// build they were compiled from.
var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "vigil",
		HelpName:              "vigil",
		Usage:                 "A keepalive daemon for unattended sessions.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "vigil <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:   "daemon",
				Action: runDaemon,
			},
			{
				Name:               "start",
				Usage:              "begin a new keepalive session",
				Action:             start,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        StartDescription,
			},
			{
				Name:   "pause",
				Usage:  "pause the running session",
				Action: pause,
			},
			{
				Name:   "resume",
				Usage:  "resume a paused session",
				Action: resume,
			},
			{
				Name:   "stop",
				Usage:  "stop the current session",
				Action: stop,
			},
			{
				Name:   "reset",
				Usage:  "discard the current session and its checkpoint",
				Action: reset,
			},
			{
				Name:   "retry",
				Usage:  "retry after a failed session",
				Action: retry,
			},
			{
				Name:               "status",
				Aliases:            []string{"s"},
				Usage:              "show the current session status",
				Action:             status,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        StatusDescription,
			},
			{
				Name:               "attach",
				Aliases:            []string{"a"},
				Usage:              "follow the current session live",
				Action:             attach,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        AttachDescription,
			},
			{
				Name:                   "settings",
				Usage:                  "show or update scheduler settings",
				Action:                 settings,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            SettingsDescription,
				UseShortOptionHandling: true,
				Flags:                  settingsFlags,
			},
			{
				Name:                   "schedule",
				Usage:                  "arm an unattended session start",
				Action:                 schedule,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            ScheduleDescription,
				UseShortOptionHandling: true,
				Flags:                  scheduleFlags,
			},
			{
				Name:               "unschedule",
				Usage:              "cancel a pending scheduled start",
				Action:             unschedule,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        UnscheduleDescription,
			},
			{
				Name:               "schedules",
				Aliases:            []string{"ls"},
				Usage:              "list pending scheduled starts",
				Action:             schedules,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        SchedulesDescription,
			},
			{
				Name:    "background",
				Aliases: []string{"bg"},
				Usage:   "mark the session as backgrounded",
				Action:  background,
			},
			{
				Name:    "foreground",
				Aliases: []string{"fg"},
				Usage:   "bring a backgrounded session to the foreground",
				Action:  foreground,
			},
			{
				Name:   "sleep",
				Usage:  "tell the daemon the host is about to sleep",
				Action: sleepCmd,
			},
			{
				Name:   "lowpower",
				Usage:  "toggle low-power tick widening (on/off)",
				Action: lowPower,
			},
			{
				Name:   "wake",
				Usage:  "tell the daemon the host woke up",
				Action: wakeCmd,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of vigil",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      status,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
