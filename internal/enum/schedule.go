package enum

// ScheduleMode selects how the scheduler computes the next unattended run.
type ScheduleMode string

const (
	ScheduleIntervalDays ScheduleMode = "interval_days"
	ScheduleCron         ScheduleMode = "cron"
)

func (t ScheduleMode) String() string {
	return string(t)
}

func ParseScheduleMode(s string) (ScheduleMode, bool) {
	switch ScheduleMode(s) {
	case ScheduleIntervalDays, ScheduleCron:
		return ScheduleMode(s), true
	}
	return "", false
}
