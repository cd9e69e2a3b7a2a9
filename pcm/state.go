package pcm

// WarningFlags is the set of dashboard warning lamps the emulated PCM can
// drive. Each flag maps to a documented bit position in the 0x420 or 0x212
// frame; the codec owns the bit layout, this struct owns the meaning.
type WarningFlags struct {
	CheckEngine   bool
	ABSWarning    bool
	OilPressure   bool
	CoolantLevel  bool
	BatteryCharge bool
	BrakeFailure  bool
	Immobilizer   bool
}

// SetAll turns every lamp on. Used by the failsafe override.
func (w *WarningFlags) SetAll() {
	w.CheckEngine = true
	w.ABSWarning = true
	w.OilPressure = true
	w.CoolantLevel = true
	w.BatteryCharge = true
	w.BrakeFailure = true
	w.Immobilizer = true
}

// Any reports whether at least one lamp is lit.
func (w WarningFlags) Any() bool {
	return w.CheckEngine || w.ABSWarning || w.OilPressure || w.CoolantLevel ||
		w.BatteryCharge || w.BrakeFailure || w.Immobilizer
}

// VehicleState is the single shared state record. The scheduler is its only
// writer; every other party sees a copy via Snapshot. Fixed-point units
// follow the wire protocol:
//
//	SpeedTenths      km/h * 10
//	CoolantTempTenths degrees * 10 (CAN encoding units, 1450 = normal)
//	BatteryVoltage    V * 100
//	Wheel*            km/h * 100
type VehicleState struct {
	RPM             uint16
	SpeedTenths     uint16
	ThrottlePercent uint8

	CoolantTempTenths int16
	BatteryVoltage    uint16

	WheelFL uint16
	WheelFR uint16
	WheelRL uint16
	WheelRR uint16

	Warnings WarningFlags

	// OdometerTicks increments once per transmitted 0x420 frame and wraps
	// at 255; the cluster integrates it into displayed mileage.
	OdometerTicks uint8

	ImmobilizerUnlocked bool
	FailsafeActive      bool
}

// Snapshot is a read-only copy of VehicleState handed to external
// collaborators (UI bridge, telemetry, diagnostics). VehicleState is a
// plain value type so a struct copy is a complete snapshot.
type Snapshot = VehicleState
