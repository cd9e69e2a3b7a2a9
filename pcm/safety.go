package pcm

import (
	"fmt"
	"os"
	"time"
)

// SafetyLevel is the global safety posture. Only the SafetySupervisor
// mutates it; everything else consults it.
type SafetyLevel int

const (
	SafetyNormal SafetyLevel = iota
	SafetyWarning
	SafetyFailsafe
)

func (l SafetyLevel) String() string {
	switch l {
	case SafetyWarning:
		return "warning"
	case SafetyFailsafe:
		return "failsafe"
	default:
		return "normal"
	}
}

// Watchdog abstracts the hardware watchdog timer. Kick must be called every
// loop iteration; the platform resets the controller if it is not kicked
// within its timeout. That reset is the last line of defense against a hung
// loop and cannot be caught in software.
type Watchdog interface {
	Kick() error
	Close() error
}

// FileWatchdog drives a Linux watchdog device (normally /dev/watchdog).
type FileWatchdog struct {
	f *os.File
}

// OpenFileWatchdog opens the watchdog device. Opening it arms the timer;
// from then on the caller must kick or the board resets.
func OpenFileWatchdog(path string) (*FileWatchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog %s: %v", path, err)
	}
	return &FileWatchdog{f: f}, nil
}

func (w *FileWatchdog) Kick() error {
	_, err := w.f.Write([]byte{0})
	return err
}

// Close performs the magic close so the timer disarms on clean shutdown.
func (w *FileWatchdog) Close() error {
	if _, err := w.f.Write([]byte{'V'}); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// NopWatchdog satisfies the interface where no hardware watchdog exists
// (bench setups, tests).
type NopWatchdog struct{}

func (NopWatchdog) Kick() error  { return nil }
func (NopWatchdog) Close() error { return nil }

// Range limits for the pure predicate checks. Temperatures are degrees * 10,
// voltages are V * 100.
const (
	tempMinTenths = -400 // -40.0
	tempMaxTenths = 1250 // 125.0

	voltageMinCentis = 1000 // 10.00 V
	voltageMaxCentis = 1600 // 16.00 V
)

// DefaultCANTimeout is how long the bus may be silent before the supervisor
// reacts. Inherited from the donor firmware; validate against real traffic
// before trusting it on a road car.
const DefaultCANTimeout = 500 * time.Millisecond

// FailsafeReasonCANTimeout is the reason recorded when inbound CAN silence
// triggers the failsafe.
const FailsafeReasonCANTimeout = "CAN RX timeout"

// SafetyConfig is the boot-time policy for the supervisor.
type SafetyConfig struct {
	CANTimeout time.Duration

	// TimeoutFailsafe escalates CAN silence to Failsafe. When false,
	// silence only raises Warning.
	TimeoutFailsafe bool
}

// SafetySupervisor owns the watchdog kick, the CAN-activity timeout and the
// failsafe state machine. A transition into Failsafe is sticky: it survives
// healthy cycles and only ExitFailsafe clears it.
type SafetySupervisor struct {
	logger   Logger
	watchdog Watchdog
	cfg      SafetyConfig

	level       SafetyLevel
	reason      string
	lastRX      time.Time
	timeoutSeen bool
	kicks       uint64
}

func NewSafetySupervisor(cfg SafetyConfig, watchdog Watchdog, logger Logger, now time.Time) *SafetySupervisor {
	if cfg.CANTimeout <= 0 {
		cfg.CANTimeout = DefaultCANTimeout
	}
	if watchdog == nil {
		watchdog = NopWatchdog{}
	}
	return &SafetySupervisor{
		logger:   ensureLogger(logger),
		watchdog: watchdog,
		cfg:      cfg,
		level:    SafetyNormal,
		lastRX:   now,
	}
}

// Kick feeds the hardware watchdog. Must run every loop iteration.
func (s *SafetySupervisor) Kick() {
	if err := s.watchdog.Kick(); err != nil {
		// Nothing useful can be done; the board will reset if this
		// persists, which is the designed outcome.
		s.logger.Error("watchdog kick failed: %v", err)
	}
	s.kicks++
}

// RecordActivity notes inbound CAN traffic and rearms the timeout.
func (s *SafetySupervisor) RecordActivity(now time.Time) {
	s.lastRX = now
	s.timeoutSeen = false
}

// SinceActivity returns the time since the last inbound frame.
func (s *SafetySupervisor) SinceActivity(now time.Time) time.Duration {
	return now.Sub(s.lastRX)
}

// Timeout returns the effective CAN silence limit.
func (s *SafetySupervisor) Timeout() time.Duration {
	return s.cfg.CANTimeout
}

// Update runs the per-cycle checks. It never leaves Failsafe.
func (s *SafetySupervisor) Update(now time.Time) {
	if now.Sub(s.lastRX) <= s.cfg.CANTimeout {
		return
	}
	if s.timeoutSeen {
		return
	}
	s.timeoutSeen = true

	if s.cfg.TimeoutFailsafe {
		s.EnterFailsafe(FailsafeReasonCANTimeout)
		return
	}
	s.logger.Warn("no CAN activity for %v", s.cfg.CANTimeout)
	if s.level == SafetyNormal {
		s.level = SafetyWarning
	}
}

// EnterFailsafe is idempotent and sticky. Repeated calls while already in
// Failsafe only update the reason.
func (s *SafetySupervisor) EnterFailsafe(reason string) {
	if s.level != SafetyFailsafe {
		s.logger.Error("FAILSAFE: %s (throttle 0, RPM 0, all warning lamps on)", reason)
	} else if reason != s.reason {
		s.logger.Error("failsafe reason updated: %s", reason)
	}
	s.level = SafetyFailsafe
	s.reason = reason
}

// ExitFailsafe is the only way out of Failsafe. There is no implicit
// "next good cycle" recovery.
func (s *SafetySupervisor) ExitFailsafe() {
	if s.level != SafetyFailsafe {
		return
	}
	s.logger.Info("exiting failsafe (was: %s)", s.reason)
	s.level = SafetyNormal
	s.reason = ""
	s.timeoutSeen = false
}

// Level returns the current safety posture.
func (s *SafetySupervisor) Level() SafetyLevel {
	return s.level
}

// Reason returns the recorded failsafe reason, or "" outside Failsafe.
func (s *SafetySupervisor) Reason() string {
	return s.reason
}

// Kicks returns the watchdog kick count, for diagnostics.
func (s *SafetySupervisor) Kicks() uint64 {
	return s.kicks
}

// TemperatureInRange is a pure predicate: degrees * 10 within the absolute
// limits. Out-of-range is always flagged by the caller; whether it
// escalates to failsafe is a policy choice, not automatic.
func TemperatureInRange(tenths int16) bool {
	return tenths >= tempMinTenths && tenths <= tempMaxTenths
}

// VoltageInRange is a pure predicate: V * 100 within the absolute limits.
func VoltageInRange(centis uint16) bool {
	return centis >= voltageMinCentis && centis <= voltageMaxCentis
}
