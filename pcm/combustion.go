package pcm

// Combustion model constants. The RPM blend is a development placeholder
// standing in for a real tach sensor feed; its contract is a bounded output
// range and a monotonic thermal ramp, nothing more.
const (
	idleRPM    = 1000
	minRPM     = 800
	redlineRPM = 9000

	// DefaultTargetTempTenths is normal operating temperature in CAN
	// encoding units * 10 (145 reads as the needle's center).
	DefaultTargetTempTenths = 1450

	// DefaultInitialTempTenths is a cold start (roughly ambient on the
	// cluster's scale).
	DefaultInitialTempTenths = 820
)

// CombustionProfile models an internal-combustion engine. RPM is a 70/30
// blend of a throttle-derived base (idle to redline, linear) and a
// speed-derived component approximating gearing, clamped to a safe range.
// Temperature walks toward the target one tenth per cycle.
type CombustionProfile struct {
	logger Logger

	rpm        uint16
	tempTenths int16
	target     int16
}

func NewCombustionProfile(cfg ProfileConfig, logger Logger) *CombustionProfile {
	target := cfg.TargetTempTenths
	if target == 0 {
		target = DefaultTargetTempTenths
	}
	initial := cfg.InitialTempTenths
	if initial == 0 {
		initial = DefaultInitialTempTenths
	}

	logger = ensureLogger(logger)
	logger.Info("combustion profile: target temp %d.%d", target/10, target%10)

	return &CombustionProfile{
		logger:     logger,
		rpm:        idleRPM,
		tempTenths: initial,
		target:     target,
	}
}

func (p *CombustionProfile) Type() ProfileType {
	return ProfileCombustion
}

// HandleFrame: the combustion variant takes no input from the bus.
func (p *CombustionProfile) HandleFrame(Frame) bool {
	return false
}

func (p *CombustionProfile) Update(throttlePercent uint8, speedTenths uint16) {
	// Throttle base: idle at closed pedal, redline at full, linear.
	base := uint32(idleRPM) + uint32(throttlePercent)*80

	// Speed component approximating gear ratios.
	speed := uint32(speedTenths) / 10 * 100

	rpm := (base*7 + speed*3) / 10
	if rpm < minRPM {
		rpm = minRPM
	}
	if rpm > redlineRPM {
		rpm = redlineRPM
	}
	p.rpm = uint16(rpm)

	// Thermal inertia: one tenth per cycle toward the target.
	if p.tempTenths < p.target {
		p.tempTenths++
	} else if p.tempTenths > p.target {
		p.tempTenths--
	}
}

func (p *CombustionProfile) RPM() uint16 {
	return p.rpm
}

func (p *CombustionProfile) TemperatureTenths() int16 {
	return p.tempTenths
}
