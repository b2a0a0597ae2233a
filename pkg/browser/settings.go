package browser

import "time"

// Settings are the timing knobs for one session. All waits poll at
// PollInterval against absolute deadlines; the recovery cap bounds
// silent retries of transient driver faults.
type Settings struct {
	DefaultTimeout     time.Duration // general element waits
	OpenTimeout        time.Duration // dialog/page open waits
	ShortTimeout       time.Duration // best-effort probes (CancelAll, presence checks)
	CloseDialogTimeout time.Duration // dialog disappearance waits

	PollInterval        time.Duration
	MaxRecoveryAttempts int
	MaxScanDepth        int           // frame-census depth bound
	RecoverySleep       time.Duration // pause between transient-fault retries
	LinkClickDelay      time.Duration // settle time after link/trigger clicks

	// RefreshOnFlaky allows a full page refresh as a last-resort
	// workaround once the recovery cap is exhausted. When the refresh
	// resolves the symptom the failure is downgraded to a warning;
	// otherwise the original error propagates unchanged.
	RefreshOnFlaky bool

	ArtifactsDir string // failure screenshots; empty disables capture
}

// DefaultSettings returns the stock timing profile.
func DefaultSettings() Settings {
	return Settings{
		DefaultTimeout:      30 * time.Second,
		OpenTimeout:         45 * time.Second,
		ShortTimeout:        3 * time.Second,
		CloseDialogTimeout:  10 * time.Second,
		PollInterval:        250 * time.Millisecond,
		MaxRecoveryAttempts: 3,
		MaxScanDepth:        8,
		RecoverySleep:       500 * time.Millisecond,
		LinkClickDelay:      200 * time.Millisecond,
	}
}

// Normalize fills zero fields from the defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.DefaultTimeout <= 0 {
		s.DefaultTimeout = def.DefaultTimeout
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = def.OpenTimeout
	}
	if s.ShortTimeout <= 0 {
		s.ShortTimeout = def.ShortTimeout
	}
	if s.CloseDialogTimeout <= 0 {
		s.CloseDialogTimeout = def.CloseDialogTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = def.PollInterval
	}
	if s.MaxRecoveryAttempts <= 0 {
		s.MaxRecoveryAttempts = def.MaxRecoveryAttempts
	}
	if s.MaxScanDepth <= 0 {
		s.MaxScanDepth = def.MaxScanDepth
	}
	if s.RecoverySleep <= 0 {
		s.RecoverySleep = def.RecoverySleep
	}
	if s.LinkClickDelay < 0 {
		s.LinkClickDelay = def.LinkClickDelay
	}
	return s
}
