package pcm

import "encoding/binary"

// PrechargeOutput drives the precharge/coolant-pump PWM channel of an EV
// conversion. Level 0 is off, PrechargeFull is the normal running level.
type PrechargeOutput interface {
	Set(level uint8) error
}

// PrechargeFunc adapts a function to the PrechargeOutput interface.
type PrechargeFunc func(level uint8) error

func (f PrechargeFunc) Set(level uint8) error {
	return f(level)
}

const (
	// PrechargeFull is the PWM level while the motor is active.
	PrechargeFull = 254

	// motorIdleRPM: at or below this the motor counts as idle.
	motorIdleRPM = 100

	// DefaultIdleTimeoutCycles of consecutive near-zero-RPM cycles before
	// the precharge output is dropped (roughly five minutes at 100 ms).
	DefaultIdleTimeoutCycles = 3000

	// Inverter temperature mapping: 8-bit raw onto the cluster's coolant
	// scale (88 reads cold, 230 pegs the gauge).
	inverterRawMax  = 254
	inverterTempLow = 88
	inverterTempHi  = 230
)

// ElectricProfile reads RPM and temperature from the motor inverter's CAN
// frames instead of modelling them. It also runs the debounced idle-timeout
// machine for the precharge/pump output.
type ElectricProfile struct {
	logger    Logger
	precharge PrechargeOutput
	idleLimit uint32

	rpm        uint16
	tempTenths int16

	idleCycles  uint32
	idleTimeout bool
	started     bool
}

func NewElectricProfile(cfg ProfileConfig, logger Logger) *ElectricProfile {
	limit := cfg.IdleTimeoutCycles
	if limit == 0 {
		limit = DefaultIdleTimeoutCycles
	}

	logger = ensureLogger(logger)
	logger.Info("electric profile: inverter frames 0x%03X/0x%03X, idle timeout %d cycles",
		FrameMotorRPM, FrameMotorTemp, limit)

	return &ElectricProfile{
		logger:    logger,
		precharge: cfg.Precharge,
		idleLimit: limit,
	}
}

func (p *ElectricProfile) Type() ProfileType {
	return ProfileElectric
}

// HandleFrame consumes the two inverter frames.
func (p *ElectricProfile) HandleFrame(f Frame) bool {
	switch f.ID {
	case FrameMotorRPM:
		if f.Length < 2 {
			return true
		}
		rpm := binary.LittleEndian.Uint16(f.Data[0:2])
		// Readings past redline are inverter glitches, not real speed.
		if rpm <= redlineRPM {
			p.rpm = rpm
		}
		return true

	case FrameMotorTemp:
		if f.Length < 1 {
			return true
		}
		p.tempTenths = mapInverterTemp(f.Data[0]) * 10
		return true
	}
	return false
}

// mapInverterTemp linearly interpolates the inverter's 8-bit reading onto
// the cluster's temperature scale.
func mapInverterTemp(raw uint8) int16 {
	r := int32(raw)
	if r > inverterRawMax {
		r = inverterRawMax
	}
	span := int32(inverterTempHi - inverterTempLow)
	return int16(inverterTempLow + (r*span+inverterRawMax/2)/inverterRawMax)
}

// Update runs the idle-timeout state machine: after idleLimit consecutive
// near-zero-RPM cycles the precharge output is driven off; it is restored
// to full within one cycle of the motor turning again.
func (p *ElectricProfile) Update(_ uint8, _ uint16) {
	if p.rpm <= motorIdleRPM {
		if p.idleCycles < p.idleLimit {
			p.idleCycles++
		}
	} else {
		p.idleCycles = 0
	}

	shouldTimeout := p.idleCycles >= p.idleLimit
	if shouldTimeout != p.idleTimeout || !p.started {
		p.started = true
		p.idleTimeout = shouldTimeout
		if shouldTimeout {
			p.logger.Info("motor idle timeout, precharge off")
			p.setPrecharge(0)
		} else {
			p.setPrecharge(PrechargeFull)
		}
	}
}

func (p *ElectricProfile) setPrecharge(level uint8) {
	if p.precharge == nil {
		return
	}
	if err := p.precharge.Set(level); err != nil {
		p.logger.Error("precharge output: %v", err)
	}
}

func (p *ElectricProfile) RPM() uint16 {
	return p.rpm
}

func (p *ElectricProfile) TemperatureTenths() int16 {
	return p.tempTenths
}

// IdleTimedOut reports whether the precharge output is currently dropped.
func (p *ElectricProfile) IdleTimedOut() bool {
	return p.idleTimeout
}
