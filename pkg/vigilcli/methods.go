package vigilcli

import (
	"github.com/vigild/vigil/common"
)

// Version returns the daemon's build information.
func (c *Client) Version() (*common.VersionResult, error) {
	var res common.VersionResult
	if err := c.call(common.MethodVersion, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Start begins a new session with the daemon's current settings. Starting
// while a session runs returns the live session's status.
func (c *Client) Start() (*common.StatusResult, error) {
	var res common.StatusResult
	if err := c.call(common.MethodStart, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Pause freezes the live session's clock.
func (c *Client) Pause() error {
	var res common.EmptyResult
	return c.call(common.MethodPause, nil, &res)
}

// Resume continues a paused session.
func (c *Client) Resume() error {
	var res common.EmptyResult
	return c.call(common.MethodResume, nil, &res)
}

// Stop ends the live session and discards its checkpoint.
func (c *Client) Stop() error {
	var res common.EmptyResult
	return c.call(common.MethodStop, nil, &res)
}

// Reset clears any session state, including error states.
func (c *Client) Reset() error {
	var res common.EmptyResult
	return c.call(common.MethodReset, nil, &res)
}

// Retry restarts recovery for a session stuck in the error state.
func (c *Client) Retry() error {
	var res common.EmptyResult
	return c.call(common.MethodRetry, nil, &res)
}

// Status fetches the current session snapshot.
func (c *Client) Status() (*common.StatusResult, error) {
	var res common.StatusResult
	if err := c.call(common.MethodStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Background marks the session as running unattended.
func (c *Client) Background() error {
	var res common.EmptyResult
	return c.call(common.MethodBackground, nil, &res)
}

// Foreground returns a backgrounded session to normal operation.
func (c *Client) Foreground() error {
	var res common.EmptyResult
	return c.call(common.MethodForeground, nil, &res)
}

// GetSettings fetches the daemon's scheduler settings.
func (c *Client) GetSettings() (*common.SettingsPayload, error) {
	var res common.SettingsPayload
	if err := c.call(common.MethodSettingsGet, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateSettings validates and applies new scheduler settings.
func (c *Client) UpdateSettings(p *common.SettingsPayload) error {
	var res common.EmptyResult
	return c.call(common.MethodSettingsUpdate, p, &res)
}

// Schedule registers a future session start. Exactly one of startAt
// (RFC 3339) or cronExpr may be set.
func (c *Client) Schedule(startAt, cronExpr string) (*common.ScheduleResult, error) {
	var res common.ScheduleResult
	err := c.call(common.MethodSchedule, &common.ScheduleParams{
		StartAt:  startAt,
		CronExpr: cronExpr,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Unschedule cancels a pending schedule.
func (c *Client) Unschedule(scheduleID string) error {
	var res common.EmptyResult
	return c.call(common.MethodUnschedule, &common.UnscheduleParams{ScheduleID: scheduleID}, &res)
}

// Schedules lists all pending schedules, earliest first.
func (c *Client) Schedules() (*common.SchedulesResult, error) {
	var res common.SchedulesResult
	if err := c.call(common.MethodSchedules, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sleep tells the daemon the host is about to suspend.
func (c *Client) Sleep() error {
	var res common.EmptyResult
	return c.call(common.MethodSleep, nil, &res)
}

// Wake tells the daemon the host resumed from suspend.
func (c *Client) Wake() error {
	var res common.EmptyResult
	return c.call(common.MethodWake, nil, &res)
}

// SetLowPower toggles the daemon's low-power tick widening.
func (c *Client) SetLowPower(on bool) error {
	var res common.EmptyResult
	return c.call(common.MethodLowPower, &common.LowPowerParams{On: on}, &res)
}
