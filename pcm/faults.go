package pcm

import "sort"

// DTC is a two-byte diagnostic trouble code as carried on the wire by
// service 03 responses.
type DTC uint16

// Trouble codes this emulator can raise. The letter prefix lives in the top
// two bits (00=P, 01=C, 10=B, 11=U).
const (
	DTCWheelSpeedPlausibility DTC = 0x0500 // P0500: vehicle speed sensor
	DTCImmobilizerLocked      DTC = 0x0513 // P0513: incorrect immobilizer key
	DTCVoltageLow             DTC = 0x0562 // P0562: system voltage low
	DTCVoltageHigh            DTC = 0x0563 // P0563: system voltage high
	DTCCANBusTimeout          DTC = 0xC121 // U0121: lost communication with ABS
)

func (d DTC) String() string {
	letters := [4]byte{'P', 'C', 'B', 'U'}
	out := [5]byte{
		letters[d>>14],
		hexDigit(uint8(d >> 12 & 0x3)),
		hexDigit(uint8(d >> 8 & 0xF)),
		hexDigit(uint8(d >> 4 & 0xF)),
		hexDigit(uint8(d & 0xF)),
	}
	return string(out[:])
}

func hexDigit(v uint8) byte {
	if v < 10 {
		return '0' + v
	}
	return 'A' + v - 10
}

var dtcDescriptions = map[DTC]string{
	DTCWheelSpeedPlausibility: "Wheel speed plausibility fault",
	DTCImmobilizerLocked:      "Immobilizer locked",
	DTCVoltageLow:             "System voltage low",
	DTCVoltageHigh:            "System voltage high",
	DTCCANBusTimeout:          "CAN bus communication lost",
}

// Describe returns a human-readable description for a trouble code.
func Describe(d DTC) string {
	if desc, ok := dtcDescriptions[d]; ok {
		return desc
	}
	return "Unknown fault"
}

// FaultStore collects active trouble codes for the diagnostics facade.
// Written only by the control loop; read by the OBD responder within the
// same loop, so no locking is needed.
type FaultStore struct {
	logger   Logger
	active   map[DTC]bool
	listener func(code DTC, present bool)
}

func NewFaultStore(logger Logger) *FaultStore {
	return &FaultStore{
		logger: ensureLogger(logger),
		active: make(map[DTC]bool),
	}
}

// SetListener registers an edge callback (telemetry uses it). Called on the
// control loop goroutine; the listener must not block.
func (fs *FaultStore) SetListener(fn func(code DTC, present bool)) {
	fs.listener = fn
}

// Set marks a code present or absent, logging edges only.
func (fs *FaultStore) Set(code DTC, present bool) {
	if fs.active[code] == present {
		return
	}
	if present {
		fs.active[code] = true
		fs.logger.Warn("fault set: %s (%s)", code, Describe(code))
	} else {
		delete(fs.active, code)
		fs.logger.Info("fault cleared: %s (%s)", code, Describe(code))
	}
	if fs.listener != nil {
		fs.listener(code, present)
	}
}

// Clear removes every stored code (service 04).
func (fs *FaultStore) Clear() {
	if len(fs.active) > 0 {
		fs.logger.Info("clearing %d stored faults", len(fs.active))
	}
	for code := range fs.active {
		delete(fs.active, code)
		if fs.listener != nil {
			fs.listener(code, false)
		}
	}
}

// Active returns the present codes in ascending order.
func (fs *FaultStore) Active() []DTC {
	codes := make([]DTC, 0, len(fs.active))
	for code := range fs.active {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
