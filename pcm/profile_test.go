package pcm

import (
	"encoding/binary"
	"testing"
)

// --- combustion ---

func TestCombustion_IdleAtClosedPedal(t *testing.T) {
	p := NewCombustionProfile(ProfileConfig{}, &testLogger{})
	p.Update(0, 0)
	// Standing still at closed pedal: 70% of the 1000 RPM base.
	if p.RPM() < minRPM || p.RPM() > idleRPM {
		t.Errorf("idle RPM %d outside [%d, %d]", p.RPM(), minRPM, idleRPM)
	}
}

func TestCombustion_RPMBlend(t *testing.T) {
	p := NewCombustionProfile(ProfileConfig{}, &testLogger{})

	// base = 1000 + 50*80 = 5000, speed = 60 km/h -> 6000
	// blend = (5000*7 + 6000*3) / 10 = 5300
	p.Update(50, 600)
	if p.RPM() != 5300 {
		t.Errorf("expected 5300, got %d", p.RPM())
	}
}

func TestCombustion_RPMClamps(t *testing.T) {
	p := NewCombustionProfile(ProfileConfig{}, &testLogger{})

	p.Update(100, 3000)
	if p.RPM() != redlineRPM {
		t.Errorf("expected redline clamp %d, got %d", redlineRPM, p.RPM())
	}

	for i := 0; i < 100; i++ {
		p.Update(0, 0)
		if p.RPM() < minRPM || p.RPM() > redlineRPM {
			t.Fatalf("RPM %d escaped [%d, %d]", p.RPM(), minRPM, redlineRPM)
		}
	}
}

func TestCombustion_ThermalRamp(t *testing.T) {
	p := NewCombustionProfile(ProfileConfig{InitialTempTenths: 1440, TargetTempTenths: 1450}, &testLogger{})

	for i := 0; i < 10; i++ {
		prev := p.TemperatureTenths()
		p.Update(0, 0)
		if p.TemperatureTenths() != prev+1 {
			t.Fatalf("cycle %d: expected +1 tenth, %d -> %d", i, prev, p.TemperatureTenths())
		}
	}

	// At the target it must hold, not oscillate.
	p.Update(0, 0)
	if p.TemperatureTenths() != 1450 {
		t.Errorf("expected steady 1450, got %d", p.TemperatureTenths())
	}
}

func TestCombustion_IgnoresBusFrames(t *testing.T) {
	p := NewCombustionProfile(ProfileConfig{}, &testLogger{})
	if p.HandleFrame(Frame{ID: FrameMotorRPM, Length: 2}) {
		t.Error("combustion profile must not consume bus frames")
	}
}

// --- electric ---

func motorRPMFrame(rpm uint16) Frame {
	var f Frame
	f.ID = FrameMotorRPM
	f.Length = 2
	binary.LittleEndian.PutUint16(f.Data[0:2], rpm)
	return f
}

type fakePrecharge struct {
	levels []uint8
}

func (f *fakePrecharge) Set(level uint8) error {
	f.levels = append(f.levels, level)
	return nil
}

func TestElectric_RPMFromInverter(t *testing.T) {
	p := NewElectricProfile(ProfileConfig{}, &testLogger{})

	if !p.HandleFrame(motorRPMFrame(4200)) {
		t.Fatal("inverter RPM frame must be consumed")
	}
	if p.RPM() != 4200 {
		t.Errorf("expected 4200, got %d", p.RPM())
	}
}

func TestElectric_RejectsGlitchReadings(t *testing.T) {
	p := NewElectricProfile(ProfileConfig{}, &testLogger{})

	p.HandleFrame(motorRPMFrame(4200))
	p.HandleFrame(motorRPMFrame(12000))
	if p.RPM() != 4200 {
		t.Errorf("glitch reading must be ignored, got %d", p.RPM())
	}
}

func TestElectric_TemperatureMapping(t *testing.T) {
	p := NewElectricProfile(ProfileConfig{}, &testLogger{})

	cases := []struct {
		raw  uint8
		want int16
	}{
		{0, 880},    // cold end of the scale
		{254, 2300}, // hot end
	}
	for _, c := range cases {
		f := Frame{ID: FrameMotorTemp, Length: 1}
		f.Data[0] = c.raw
		p.HandleFrame(f)
		if p.TemperatureTenths() != c.want {
			t.Errorf("raw %d: expected %d, got %d", c.raw, c.want, p.TemperatureTenths())
		}
	}
}

func TestElectric_IdleTimeout(t *testing.T) {
	pre := &fakePrecharge{}
	p := NewElectricProfile(ProfileConfig{IdleTimeoutCycles: 5, Precharge: pre}, &testLogger{})

	// First update drives the output to full.
	p.Update(0, 0)
	if len(pre.levels) != 1 || pre.levels[0] != PrechargeFull {
		t.Fatalf("expected initial full precharge, got %v", pre.levels)
	}

	// Idle for the timeout window.
	for i := 0; i < 5; i++ {
		p.Update(0, 0)
	}
	if !p.IdleTimedOut() {
		t.Fatal("expected idle timeout")
	}
	if pre.levels[len(pre.levels)-1] != 0 {
		t.Errorf("precharge must drop to 0, got %v", pre.levels)
	}

	// Output changes only on edges, not every idle cycle.
	drops := len(pre.levels)
	p.Update(0, 0)
	if len(pre.levels) != drops {
		t.Error("steady timeout state must not rewrite the output")
	}

	// Motor turning restores full output within one cycle.
	p.HandleFrame(motorRPMFrame(500))
	p.Update(0, 0)
	if p.IdleTimedOut() {
		t.Error("timeout must clear when the motor turns")
	}
	if pre.levels[len(pre.levels)-1] != PrechargeFull {
		t.Errorf("precharge must restore to full, got %v", pre.levels)
	}
}

func TestElectric_IdleCounterResets(t *testing.T) {
	p := NewElectricProfile(ProfileConfig{IdleTimeoutCycles: 5}, &testLogger{})

	for i := 0; i < 4; i++ {
		p.Update(0, 0)
	}
	p.HandleFrame(motorRPMFrame(2000))
	p.Update(0, 0)
	p.HandleFrame(motorRPMFrame(0))
	for i := 0; i < 4; i++ {
		p.Update(0, 0)
	}
	if p.IdleTimedOut() {
		t.Error("a spin must reset the idle counter")
	}
}

// --- factory ---

func TestParseProfileType(t *testing.T) {
	cases := []struct {
		in      string
		want    ProfileType
		wantErr bool
	}{
		{"combustion", ProfileCombustion, false},
		{"ice", ProfileCombustion, false},
		{"electric", ProfileElectric, false},
		{"ev", ProfileElectric, false},
		{"diesel", ProfileCombustion, true},
	}
	for _, c := range cases {
		got, err := ParseProfileType(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("%q: unexpected error state: %v", c.in, err)
		}
		if err == nil && got != c.want {
			t.Errorf("%q: got %v want %v", c.in, got, c.want)
		}
	}
}
