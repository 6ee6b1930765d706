package enum

// RefreshStatus is the account-level view of the most recent refresh attempt.
type RefreshStatus string

const (
	RefreshStatusUnknown RefreshStatus = "unknown"
	RefreshStatusSuccess RefreshStatus = "success"
	RefreshStatusFailed  RefreshStatus = "failed"
)

func (t RefreshStatus) String() string {
	return string(t)
}

// RefreshOutcome is the result of a single refresh attempt.
type RefreshOutcome string

const (
	RefreshOutcomeSuccess RefreshOutcome = "success"
	RefreshOutcomeFailed  RefreshOutcome = "failed"
)

func (t RefreshOutcome) String() string {
	return string(t)
}

// AttemptKind labels why a refresh attempt happened. It is an audit tag only;
// the engine treats all kinds identically.
type AttemptKind string

const (
	AttemptManual AttemptKind = "manual"
	AttemptRetry  AttemptKind = "retry"
	AttemptAuto   AttemptKind = "auto"
)

func (t AttemptKind) String() string {
	return string(t)
}

func ParseAttemptKind(s string) (AttemptKind, bool) {
	switch AttemptKind(s) {
	case AttemptManual, AttemptRetry, AttemptAuto:
		return AttemptKind(s), true
	}
	return "", false
}
