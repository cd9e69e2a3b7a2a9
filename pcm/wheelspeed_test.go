package pcm

import "testing"

func wheelFrame(fl, fr, rl, rr uint16) []byte {
	f := EncodeWheelSpeeds(WheelSpeeds{FrontLeft: fl, FrontRight: fr, RearLeft: rl, RearRight: rr})
	return f.Bytes()
}

func TestWheelSpeed_FrontPairAverage(t *testing.T) {
	p := NewWheelSpeedProcessor(&testLogger{})
	p.HandleFrame(wheelFrame(10000, 9600, 0, 0))

	speed, ok := p.VehicleSpeed()
	if !ok {
		t.Fatal("plausible reading rejected")
	}
	if speed != 9800 {
		t.Errorf("expected 9800, got %d", speed)
	}
	if p.MismatchActive() {
		t.Error("mismatch flag must be clear")
	}
}

func TestWheelSpeed_MismatchForcesZero(t *testing.T) {
	p := NewWheelSpeedProcessor(&testLogger{})

	// 6 km/h front-pair difference is past the plausibility threshold.
	p.HandleFrame(wheelFrame(10000, 9400, 0, 0))

	speed, ok := p.VehicleSpeed()
	if ok {
		t.Error("implausible reading must be rejected")
	}
	if speed != 0 {
		t.Errorf("implausible reading must report 0, got %d", speed)
	}
	if !p.MismatchActive() {
		t.Error("mismatch flag must be set")
	}
}

func TestWheelSpeed_MismatchSelfClears(t *testing.T) {
	p := NewWheelSpeedProcessor(&testLogger{})

	p.HandleFrame(wheelFrame(10000, 9400, 0, 0))
	if _, ok := p.VehicleSpeed(); ok {
		t.Fatal("expected mismatch")
	}

	// One good reading clears the fault; it is not sticky.
	p.HandleFrame(wheelFrame(10000, 9900, 0, 0))
	speed, ok := p.VehicleSpeed()
	if !ok {
		t.Error("good reading must clear the mismatch")
	}
	if speed != 9950 {
		t.Errorf("expected 9950, got %d", speed)
	}
	if p.MismatchActive() {
		t.Error("mismatch flag must clear")
	}
}

func TestWheelSpeed_ExactThresholdIsPlausible(t *testing.T) {
	p := NewWheelSpeedProcessor(&testLogger{})

	// Exactly 5 km/h apart is still accepted; only beyond trips the check.
	p.HandleFrame(wheelFrame(10000, 9500, 0, 0))
	if _, ok := p.VehicleSpeed(); !ok {
		t.Error("difference equal to the threshold must be accepted")
	}
}

func TestWheelSpeed_ShortFrameIgnored(t *testing.T) {
	p := NewWheelSpeedProcessor(&testLogger{})
	p.HandleFrame([]byte{1, 2, 3})
	if p.HasData() {
		t.Error("short frame must not count as data")
	}
}
