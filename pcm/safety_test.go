package pcm

import (
	"errors"
	"testing"
	"time"
)

type fakeWatchdog struct {
	kicks  int
	closed bool
	err    error
}

func (w *fakeWatchdog) Kick() error {
	w.kicks++
	return w.err
}

func (w *fakeWatchdog) Close() error {
	w.closed = true
	return nil
}

func TestSafety_WatchdogKicks(t *testing.T) {
	wd := &fakeWatchdog{}
	s := NewSafetySupervisor(SafetyConfig{}, wd, &testLogger{}, time.Now())

	for i := 0; i < 10; i++ {
		s.Kick()
	}
	if wd.kicks != 10 {
		t.Errorf("expected 10 kicks, got %d", wd.kicks)
	}
	if s.Kicks() != 10 {
		t.Errorf("expected kick counter 10, got %d", s.Kicks())
	}
}

func TestSafety_KickErrorDoesNotPanic(t *testing.T) {
	wd := &fakeWatchdog{err: errors.New("device gone")}
	s := NewSafetySupervisor(SafetyConfig{}, wd, &testLogger{}, time.Now())
	s.Kick()
	if s.Kicks() != 1 {
		t.Errorf("kick must still count on error, got %d", s.Kicks())
	}
}

func TestSafety_CANTimeoutEscalatesToFailsafe(t *testing.T) {
	start := time.Now()
	s := NewSafetySupervisor(SafetyConfig{CANTimeout: 500 * time.Millisecond, TimeoutFailsafe: true},
		nil, &testLogger{}, start)

	s.Update(start.Add(400 * time.Millisecond))
	if s.Level() != SafetyNormal {
		t.Fatalf("expected normal within timeout, got %v", s.Level())
	}

	s.Update(start.Add(600 * time.Millisecond))
	if s.Level() != SafetyFailsafe {
		t.Fatalf("expected failsafe, got %v", s.Level())
	}
	if s.Reason() != FailsafeReasonCANTimeout {
		t.Errorf("expected reason %q, got %q", FailsafeReasonCANTimeout, s.Reason())
	}
}

func TestSafety_CANTimeoutWarningOnly(t *testing.T) {
	start := time.Now()
	s := NewSafetySupervisor(SafetyConfig{CANTimeout: 500 * time.Millisecond},
		nil, &testLogger{}, start)

	s.Update(start.Add(time.Second))
	if s.Level() != SafetyWarning {
		t.Errorf("without the policy flag, silence must only warn, got %v", s.Level())
	}
}

func TestSafety_ActivityRearmsTimeout(t *testing.T) {
	start := time.Now()
	s := NewSafetySupervisor(SafetyConfig{CANTimeout: 500 * time.Millisecond, TimeoutFailsafe: true},
		nil, &testLogger{}, start)

	s.RecordActivity(start.Add(400 * time.Millisecond))
	s.Update(start.Add(800 * time.Millisecond))
	if s.Level() != SafetyNormal {
		t.Errorf("activity must rearm the timeout, got %v", s.Level())
	}
}

func TestSafety_FailsafeIsSticky(t *testing.T) {
	start := time.Now()
	s := NewSafetySupervisor(SafetyConfig{CANTimeout: 500 * time.Millisecond, TimeoutFailsafe: true},
		nil, &testLogger{}, start)

	s.Update(start.Add(time.Second))
	if s.Level() != SafetyFailsafe {
		t.Fatal("expected failsafe")
	}

	// Traffic resuming does not clear the latch.
	s.RecordActivity(start.Add(2 * time.Second))
	s.Update(start.Add(2 * time.Second))
	if s.Level() != SafetyFailsafe {
		t.Error("failsafe must survive healthy cycles")
	}

	s.ExitFailsafe()
	if s.Level() != SafetyNormal {
		t.Error("ExitFailsafe must clear the latch")
	}
	if s.Reason() != "" {
		t.Errorf("reason must clear, got %q", s.Reason())
	}
}

func TestSafety_EnterFailsafeIdempotent(t *testing.T) {
	s := NewSafetySupervisor(SafetyConfig{}, nil, &testLogger{}, time.Now())

	s.EnterFailsafe("overvoltage")
	s.EnterFailsafe("overvoltage")
	if s.Level() != SafetyFailsafe {
		t.Fatal("expected failsafe")
	}

	// A later cause replaces the recorded reason but stays latched.
	s.EnterFailsafe("sensor fault")
	if s.Reason() != "sensor fault" {
		t.Errorf("expected updated reason, got %q", s.Reason())
	}
}

func TestSafety_RangePredicates(t *testing.T) {
	tempCases := []struct {
		tenths int16
		ok     bool
	}{
		{-400, true},
		{-401, false},
		{1250, true},
		{1251, false},
		{900, true},
	}
	for _, c := range tempCases {
		if TemperatureInRange(c.tenths) != c.ok {
			t.Errorf("TemperatureInRange(%d) != %v", c.tenths, c.ok)
		}
	}

	voltCases := []struct {
		centis uint16
		ok     bool
	}{
		{1000, true},
		{999, false},
		{1600, true},
		{1601, false},
		{1380, true},
	}
	for _, c := range voltCases {
		if VoltageInRange(c.centis) != c.ok {
			t.Errorf("VoltageInRange(%d) != %v", c.centis, c.ok)
		}
	}
}
