package pcm

// ABSConfig holds the per-vehicle calibration for the ABS/DSC emulation.
// All values are boot-time only.
type ABSConfig struct {
	// Variant is byte 6 of frame 0x620 and is vehicle-instance specific:
	// known-good values are 2, 3 and 4, discovered empirically. If the ABS
	// lamp stays lit, try the other values. This is a required calibration
	// step, not a defect.
	Variant uint8

	// TransmissionByte is byte 0 of frame 0x630 (8 on a stock manual car).
	TransmissionByte uint8

	// WheelSizeByte fills bytes 6 and 7 of frame 0x630 (106 on stock wheels).
	WheelSizeByte uint8

	// Electric selects the EV flavor of 0x620 (byte 4 = 0 instead of 16).
	Electric bool

	// DynamicDSC enables transmission of the live 0x212 flag frame.
	// Disabled by default; the cluster is satisfied by the static frames.
	DynamicDSC bool
}

// DefaultABSConfig matches a stock manual car.
func DefaultABSConfig() ABSConfig {
	return ABSConfig{
		Variant:          4,
		TransmissionByte: 8,
		WheelSizeByte:    106,
	}
}

// validVariant reports whether v is one of the known ABS variant bytes.
func validVariant(v uint8) bool {
	return v == 2 || v == 3 || v == 4
}

// ABSEmulator transmits the status frames that keep the factory ABS/DSC
// lamps off when the physical module's partner (the factory PCM) is gone.
// The static frames are built once at construction; the dynamic 0x212 frame
// reflects live flags when enabled.
type ABSEmulator struct {
	logger Logger
	cfg    ABSConfig

	status     Frame // 0x620
	config     Frame // 0x630
	supplement Frame // 0x650

	flags DSCFlags
}

// NewABSEmulator builds the static frame set. An out-of-range variant byte
// falls back to the default so a typo in the config lights the lamp instead
// of corrupting the frame.
func NewABSEmulator(cfg ABSConfig, logger Logger) *ABSEmulator {
	logger = ensureLogger(logger)
	if !validVariant(cfg.Variant) {
		logger.Warn("ABS variant %d is not one of {2,3,4}, using 4", cfg.Variant)
		cfg.Variant = 4
	}

	e := &ABSEmulator{logger: logger, cfg: cfg}

	var status [8]byte
	if !cfg.Electric {
		status[4] = 16
	}
	status[6] = cfg.Variant
	e.status = Frame{ID: FrameABSStatus, Length: 7, Data: status}

	var config [8]byte
	config[0] = cfg.TransmissionByte
	config[6] = cfg.WheelSizeByte
	config[7] = cfg.WheelSizeByte
	e.config = Frame{ID: FrameABSConfig, Length: 8, Data: config}

	e.supplement = Frame{ID: FrameABSSupplement, Length: 1}

	logger.Info("ABS/DSC emulation ready: variant=%d transmission=%d wheel=%d dynamic=%v",
		cfg.Variant, cfg.TransmissionByte, cfg.WheelSizeByte, cfg.DynamicDSC)
	return e
}

// SetFlags updates the live DSC flag state used by the dynamic frame.
func (e *ABSEmulator) SetFlags(flags DSCFlags) {
	e.flags = flags
}

// Flags returns the current DSC flag state.
func (e *ABSEmulator) Flags() DSCFlags {
	return e.flags
}

// StaticFrames returns the three constant frames sent every cycle.
func (e *ABSEmulator) StaticFrames() [3]Frame {
	return [3]Frame{e.status, e.config, e.supplement}
}

// DynamicFrame returns the live 0x212 frame and whether it should be sent.
func (e *ABSEmulator) DynamicFrame() (Frame, bool) {
	if !e.cfg.DynamicDSC {
		return Frame{}, false
	}
	return EncodeDSCStatus(e.flags), true
}
