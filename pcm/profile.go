package pcm

import "fmt"

// ProfileType selects the engine backend. Exactly one variant is chosen at
// boot and never swapped at runtime.
type ProfileType int

const (
	ProfileCombustion ProfileType = iota
	ProfileElectric
)

func (t ProfileType) String() string {
	switch t {
	case ProfileElectric:
		return "electric"
	default:
		return "combustion"
	}
}

// ParseProfileType maps the config string to a profile type.
func ParseProfileType(s string) (ProfileType, error) {
	switch s {
	case "combustion", "ice":
		return ProfileCombustion, nil
	case "electric", "ev":
		return ProfileElectric, nil
	default:
		return ProfileCombustion, fmt.Errorf("invalid vehicle type %q (must be 'combustion' or 'electric')", s)
	}
}

// VehicleProfile is the pluggable engine/motor backend. It owns its private
// model state (fuel or motor internals); the scheduler only reads RPM and
// temperature from it once per cycle.
type VehicleProfile interface {
	// Type identifies the selected variant.
	Type() ProfileType

	// HandleFrame offers an inbound CAN frame to the profile and reports
	// whether it was consumed. Only the electric variant listens to the bus.
	HandleFrame(f Frame) bool

	// Update advances the model by one cycle using the latest pedal and
	// speed readings.
	Update(throttlePercent uint8, speedTenths uint16)

	// RPM returns the current engine/motor RPM.
	RPM() uint16

	// TemperatureTenths returns the reported temperature in CAN encoding
	// units * 10.
	TemperatureTenths() int16
}

// ProfileConfig carries the boot-time parameters shared by both variants.
type ProfileConfig struct {
	// Combustion model
	TargetTempTenths  int16
	InitialTempTenths int16

	// Electric idle timeout
	IdleTimeoutCycles uint32
	Precharge         PrechargeOutput
}

// NewVehicleProfile is the factory for the closed set of variants.
func NewVehicleProfile(t ProfileType, cfg ProfileConfig, logger Logger) VehicleProfile {
	switch t {
	case ProfileElectric:
		return NewElectricProfile(cfg, logger)
	default:
		return NewCombustionProfile(cfg, logger)
	}
}
