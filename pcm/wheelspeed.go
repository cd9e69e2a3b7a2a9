package pcm

// MismatchThreshold is the front-pair difference, in km/h * 100, past which
// the reading is treated as implausible (wheelspin, skid or a failing
// sensor): 500 = 5 km/h.
const MismatchThreshold = 500

// WheelSpeedProcessor decodes 0x4B1 frames and derives the reported vehicle
// speed. Only the front pair is used - rear wheels spin under power and
// would bias the reading on a driven axle.
type WheelSpeedProcessor struct {
	logger Logger

	speeds   WheelSpeeds
	mismatch bool
	fresh    bool
}

func NewWheelSpeedProcessor(logger Logger) *WheelSpeedProcessor {
	return &WheelSpeedProcessor{logger: ensureLogger(logger)}
}

// HandleFrame ingests one wheel-speed frame. Short frames are ignored.
func (p *WheelSpeedProcessor) HandleFrame(data []byte) {
	if len(data) < 8 {
		return
	}
	p.speeds = DecodeWheelSpeeds(data)
	p.fresh = true
}

// Speeds returns the last decoded wheel speeds (km/h * 100).
func (p *WheelSpeedProcessor) Speeds() WheelSpeeds {
	return p.speeds
}

// VehicleSpeed returns the reported speed in km/h * 100 and whether the
// reading is plausible. On a front-pair mismatch above the threshold the
// reported speed is forced to zero: propagating a value that might be wrong
// is worse than reporting none. The fault is not sticky - one good reading
// clears it.
func (p *WheelSpeedProcessor) VehicleSpeed() (uint16, bool) {
	diff := int32(p.speeds.FrontLeft) - int32(p.speeds.FrontRight)
	if diff < 0 {
		diff = -diff
	}

	if diff > MismatchThreshold {
		if !p.mismatch {
			p.logger.Warn("wheel speed mismatch: FL=%d FR=%d diff=%d",
				p.speeds.FrontLeft, p.speeds.FrontRight, diff)
		}
		p.mismatch = true
		return 0, false
	}

	p.mismatch = false
	return uint16((uint32(p.speeds.FrontLeft) + uint32(p.speeds.FrontRight)) / 2), true
}

// MismatchActive reports whether the last reading tripped the plausibility
// check.
func (p *WheelSpeedProcessor) MismatchActive() bool {
	return p.mismatch
}

// HasData reports whether at least one frame has been decoded since boot.
func (p *WheelSpeedProcessor) HasData() bool {
	return p.fresh
}
