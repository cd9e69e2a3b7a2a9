package pcm

import (
	"encoding/binary"
	"testing"
)

// testLogger implements Logger for testing
type testLogger struct{}

func (l *testLogger) Printf(format string, v ...interface{}) {}
func (l *testLogger) Debug(format string, v ...interface{})  {}
func (l *testLogger) Info(format string, v ...interface{})   {}
func (l *testLogger) Warn(format string, v ...interface{})   {}
func (l *testLogger) Error(format string, v ...interface{})  {}
func (l *testLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
}

// --- 0x201 PCM status ---

func TestEncodePCMStatus_Layout(t *testing.T) {
	f := EncodePCMStatus(PCMStatus{RPM: 1000, SpeedTenths: 605, ThrottlePercent: 50})

	if f.ID != FramePCMStatus || f.Length != 8 {
		t.Fatalf("unexpected frame header: ID=0x%03X len=%d", f.ID, f.Length)
	}

	rpmRaw := binary.BigEndian.Uint16(f.Data[0:2])
	if rpmRaw != 3850 {
		t.Errorf("expected rpm raw 3850, got %d", rpmRaw)
	}
	if f.Data[2] != 0xFF || f.Data[3] != 0xFF {
		t.Errorf("bytes 2-3 must be 0xFF, got %02X %02X", f.Data[2], f.Data[3])
	}
	speedRaw := binary.BigEndian.Uint16(f.Data[4:6])
	if speedRaw != 60.5*100+10000 {
		t.Errorf("expected speed raw 16050, got %d", speedRaw)
	}
	if f.Data[6] != 100 {
		t.Errorf("expected throttle byte 100, got %d", f.Data[6])
	}
	if f.Data[7] != 0xFF {
		t.Errorf("byte 7 must be 0xFF, got %02X", f.Data[7])
	}
}

func TestPCMStatus_RoundTrip(t *testing.T) {
	cases := []PCMStatus{
		{RPM: 0, SpeedTenths: 0, ThrottlePercent: 0},
		{RPM: 800, SpeedTenths: 1, ThrottlePercent: 1},
		{RPM: 1000, SpeedTenths: 605, ThrottlePercent: 50},
		{RPM: 9000, SpeedTenths: 2500, ThrottlePercent: 100},
	}

	for _, c := range cases {
		f := EncodePCMStatus(c)
		got := DecodePCMStatus(f.Bytes())
		if got != c {
			t.Errorf("round trip %+v: got %+v", c, got)
		}
	}
}

func TestEncodePCMStatus_ThrottleSaturation(t *testing.T) {
	// Anything past 100% encodes identically to 100%.
	full := EncodePCMStatus(PCMStatus{ThrottlePercent: 100})
	over := EncodePCMStatus(PCMStatus{ThrottlePercent: 150})
	if over.Data[6] != full.Data[6] {
		t.Errorf("150%% encoded as %d, want %d", over.Data[6], full.Data[6])
	}
	if over.Data[6] != 200 {
		t.Errorf("full throttle byte must be 200, got %d", over.Data[6])
	}
}

func TestDecodePCMStatus_ShortFrame(t *testing.T) {
	got := DecodePCMStatus([]byte{1, 2, 3})
	if got != (PCMStatus{}) {
		t.Errorf("short frame must decode to zero values, got %+v", got)
	}
}

// --- 0x420 warnings ---

func TestEncodeWarnings_Bits(t *testing.T) {
	f := EncodeWarnings(WarningLamps{
		CoolantTempTenths: 1450,
		OdometerTicks:     42,
		OilPressureOK:     true,
		CheckEngineMIL:    true,
		LowCoolant:        true,
		BatteryCharge:     true,
	})

	if f.ID != FrameWarnings || f.Length != 7 {
		t.Fatalf("unexpected frame header: ID=0x%03X len=%d", f.ID, f.Length)
	}
	if f.Data[0] != 145 {
		t.Errorf("expected temp byte 145, got %d", f.Data[0])
	}
	if f.Data[1] != 42 {
		t.Errorf("expected odometer byte 42, got %d", f.Data[1])
	}
	if f.Data[4] != 1 {
		t.Errorf("expected oil-pressure-OK byte 1, got %d", f.Data[4])
	}
	if f.Data[5] != 0x40 {
		t.Errorf("expected MIL byte 0x40, got 0x%02X", f.Data[5])
	}
	if f.Data[6] != 0x02|0x40 {
		t.Errorf("expected warning byte 0x42, got 0x%02X", f.Data[6])
	}
}

func TestWarnings_RoundTrip(t *testing.T) {
	w := WarningLamps{
		CoolantTempTenths: 1450,
		OdometerTicks:     200,
		OilPressureOK:     true,
		CheckEngineMIL:    true,
		CheckEngineBL:     true,
		CatalystOverTemp:  true,
		LowCoolant:        true,
		EngineOverheat:    true,
		BatteryCharge:     true,
		OilPressureLamp:   true,
	}
	got := DecodeWarnings(EncodeWarnings(w).Bytes())
	if got != w {
		t.Errorf("round trip mismatch: got %+v want %+v", got, w)
	}
}

func TestEncodeWarnings_TempSaturation(t *testing.T) {
	hot := EncodeWarnings(WarningLamps{CoolantTempTenths: 30000})
	if hot.Data[0] != 255 {
		t.Errorf("expected saturated temp byte 255, got %d", hot.Data[0])
	}
	cold := EncodeWarnings(WarningLamps{CoolantTempTenths: -100})
	if cold.Data[0] != 0 {
		t.Errorf("expected saturated temp byte 0, got %d", cold.Data[0])
	}
}

// --- 0x212 DSC ---

func TestEncodeDSCStatus_Bits(t *testing.T) {
	f := EncodeDSCStatus(DSCFlags{DSCOff: true, ABSWarning: true, ETCDisabled: true})
	if f.ID != FrameDSCStatus || f.Length != 7 {
		t.Fatalf("unexpected frame header: ID=0x%03X len=%d", f.ID, f.Length)
	}
	if f.Data[5] != 0x02|0x04 {
		t.Errorf("expected byte 5 = 0x06, got 0x%02X", f.Data[5])
	}
	if f.Data[6] != 0x08 {
		t.Errorf("expected byte 6 = 0x08, got 0x%02X", f.Data[6])
	}
}

func TestDSCStatus_RoundTrip(t *testing.T) {
	d := DSCFlags{ABSWarning: true, BrakeFailure: true, ETCActive: true}
	got := DecodeDSCStatus(EncodeDSCStatus(d).Bytes())
	if got != d {
		t.Errorf("round trip mismatch: got %+v want %+v", got, d)
	}
}

// --- 0x4B1 wheel speeds ---

func TestWheelSpeeds_RoundTrip(t *testing.T) {
	w := WheelSpeeds{FrontLeft: 10000, FrontRight: 9400, RearLeft: 9900, RearRight: 9850}
	got := DecodeWheelSpeeds(EncodeWheelSpeeds(w).Bytes())
	if got != w {
		t.Errorf("round trip mismatch: got %+v want %+v", got, w)
	}
}

func TestDecodeWheelSpeeds_BelowOffset(t *testing.T) {
	// ABS power-up can emit raw values below the offset; they read as zero.
	var data [8]byte
	binary.BigEndian.PutUint16(data[0:2], 500)
	got := DecodeWheelSpeeds(data[:])
	if got.FrontLeft != 0 {
		t.Errorf("below-offset raw must decode to 0, got %d", got.FrontLeft)
	}
}

// --- beacons ---

func TestBeaconFrames_ByteExact(t *testing.T) {
	frames := BeaconFrames()

	expect := []struct {
		id     uint32
		length uint8
		data   []byte
	}{
		{FramePCMBeaconA, 7, []byte{19, 19, 19, 19, 175, 3, 19}},
		{FramePCMBeaconB, 8, []byte{2, 45, 2, 45, 2, 42, 6, 129}},
		{FramePCMBeaconC, 5, []byte{15, 0, 255, 255, 0}},
		{FramePCMBeaconD, 8, []byte{4, 0, 40, 0, 2, 55, 6, 129}},
	}

	for i, e := range expect {
		f := frames[i]
		if f.ID != e.id || f.Length != e.length {
			t.Errorf("beacon %d: ID=0x%03X len=%d, want 0x%03X/%d", i, f.ID, f.Length, e.id, e.length)
			continue
		}
		for j, b := range e.data {
			if f.Data[j] != b {
				t.Errorf("beacon 0x%03X byte %d: got %d want %d", e.id, j, f.Data[j], b)
			}
		}
	}
}
