package pcm

// Scan-tool facade: answers the standard OBD-II request identifiers with
// current-data, read-DTC and clear-DTC services, reusing vehicle-state
// fields with the standard scaling formulas. Single-frame responses only;
// a generic scan tool never needs more for the PIDs offered here.

const (
	obdRequestFunc = 0x7DF // functional (broadcast) request
	obdRequestPhys = 0x7E0 // physical request to engine controller
	obdResponse    = 0x7E8

	obdServiceCurrentData = 0x01
	obdServiceReadDTC     = 0x03
	obdServiceClearDTC    = 0x04

	pidSupported  = 0x00
	pidCoolant    = 0x05
	pidRPM        = 0x0C
	pidSpeed      = 0x0D
	pidThrottle   = 0x11
	pidModuleVolt = 0x42
)

// OBDServer implements the diagnostics facade over the shared state.
type OBDServer struct {
	logger Logger
	faults *FaultStore
}

func NewOBDServer(faults *FaultStore, logger Logger) *OBDServer {
	return &OBDServer{logger: ensureLogger(logger), faults: faults}
}

// IsRequest reports whether the frame is addressed to the diagnostics
// facade.
func (o *OBDServer) IsRequest(id uint32) bool {
	return id == obdRequestFunc || id == obdRequestPhys
}

// HandleRequest answers one scan-tool request against a state snapshot.
// Malformed requests produce no response; scan tools retry on their own.
func (o *OBDServer) HandleRequest(data []byte, state Snapshot) (Frame, bool) {
	if len(data) < 2 {
		return Frame{}, false
	}
	payloadLen := int(data[0])
	if payloadLen < 1 || payloadLen > 7 || len(data) < 1+payloadLen {
		return Frame{}, false
	}

	service := data[1]
	switch service {
	case obdServiceCurrentData:
		if payloadLen < 2 {
			return Frame{}, false
		}
		return o.currentData(data[2], state)

	case obdServiceReadDTC:
		return o.readDTCs(), true

	case obdServiceClearDTC:
		o.faults.Clear()
		return obdReply(0x44), true

	default:
		o.logger.Debug("OBD: unsupported service 0x%02X", service)
		return Frame{}, false
	}
}

func (o *OBDServer) currentData(pid uint8, state Snapshot) (Frame, bool) {
	switch pid {
	case pidSupported:
		// Bitmap for PIDs 0x01-0x20: coolant, RPM, speed, throttle.
		return obdReply(0x41, pidSupported, 0x08, 0x18, 0x80, 0x00), true

	case pidCoolant:
		// Cluster encoding to real degrees, then the standard +40 offset.
		celsius := int32(ClusterTempToCelsiusTenths(state.CoolantTempTenths)) / 10
		a := celsius + 40
		if a < 0 {
			a = 0
		}
		if a > 255 {
			a = 255
		}
		return obdReply(0x41, pidCoolant, uint8(a)), true

	case pidRPM:
		raw := uint32(state.RPM) * 4
		if raw > 0xFFFF {
			raw = 0xFFFF
		}
		return obdReply(0x41, pidRPM, uint8(raw>>8), uint8(raw)), true

	case pidSpeed:
		kmh := state.SpeedTenths / 10
		if kmh > 255 {
			kmh = 255
		}
		return obdReply(0x41, pidSpeed, uint8(kmh)), true

	case pidThrottle:
		return obdReply(0x41, pidThrottle, uint8(uint16(state.ThrottlePercent)*255/100)), true

	case pidModuleVolt:
		mv := uint32(state.BatteryVoltage) * 10
		return obdReply(0x41, pidModuleVolt, uint8(mv>>8), uint8(mv)), true

	default:
		o.logger.Debug("OBD: unsupported PID 0x%02X", pid)
		return Frame{}, false
	}
}

func (o *OBDServer) readDTCs() Frame {
	codes := o.faults.Active()
	// Single frame carries at most two codes after the count byte; a real
	// tool would use flow control for more, which this facade does not
	// implement.
	if len(codes) > 2 {
		codes = codes[:2]
	}

	payload := []uint8{0x43, uint8(len(codes))}
	for _, code := range codes {
		payload = append(payload, uint8(code>>8), uint8(code))
	}
	return obdReply(payload...)
}

// obdReply frames a single-frame ISO-TP response on 0x7E8, padding to the
// classic 8-byte DLC scan tools expect.
func obdReply(payload ...uint8) Frame {
	f := Frame{ID: obdResponse, Length: 8}
	f.Data[0] = uint8(len(payload))
	copy(f.Data[1:], payload)
	return f
}
