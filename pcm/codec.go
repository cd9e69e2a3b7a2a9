package pcm

import "encoding/binary"

// CAN identifiers emulated or consumed by this service. All are 11-bit.
const (
	// Transmitted (factory PCM messages we emulate)
	FramePCMStatus     = 0x201 // RPM, speed, throttle
	FramePCMBeaconA    = 0x203 // traction control presence beacon
	FrameDSCStatus     = 0x212 // DSC/ABS dynamic flags
	FramePCMBeaconB    = 0x215 // PCM supplement beacon
	FramePCMBeaconC    = 0x231 // PCM supplement beacon
	FramePCMBeaconD    = 0x240 // PCM supplement beacon
	FrameWarnings      = 0x420 // MIL, coolant temp, warning lamps
	FrameABSStatus     = 0x620 // ABS system data (static)
	FrameABSConfig     = 0x630 // ABS config: transmission, wheel size
	FrameABSSupplement = 0x650 // ABS supplement (static)
	FrameImmoResponse  = 0x041 // immobilizer response (us -> keyless module)

	// Received
	FrameImmoRequest = 0x047 // immobilizer request (keyless module -> us)
	FrameWheelSpeeds = 0x4B1 // wheel speeds from ABS unit

	// Received, EV conversions only (motor inverter)
	FrameMotorRPM  = 0x00A
	FrameMotorTemp = 0x00F
)

// Protocol scaling constants. These are the dashboard's expectations and
// must not change.
const (
	rpmScaleNum   = 385 // RPM encoded as rpm * 3.85
	rpmScaleDen   = 100
	speedOffset   = 10000 // speed and wheel speeds carry a +100.00 km/h offset
	throttleMax   = 200   // 0.5% steps, 200 = 100%
	maxSpeedRaw   = 0xFFFF - speedOffset
	maxThrottlePc = 100
)

// PCMStatus is the decoded form of frame 0x201.
type PCMStatus struct {
	RPM             uint16
	SpeedTenths     uint16 // km/h * 10
	ThrottlePercent uint8  // 0-100
}

// EncodePCMStatus builds frame 0x201. Out-of-range inputs saturate at the
// nearest representable value; encoding never fails.
//
// Layout: [rpm*3.85 BE16] [FF FF] [speed*100+10000 BE16] [throttle*2] [FF]
func EncodePCMStatus(s PCMStatus) Frame {
	var buf [8]byte

	rpmRaw := (uint32(s.RPM)*rpmScaleNum + rpmScaleDen/2) / rpmScaleDen
	if rpmRaw > 0xFFFF {
		rpmRaw = 0xFFFF
	}
	binary.BigEndian.PutUint16(buf[0:2], uint16(rpmRaw))

	buf[2] = 0xFF
	buf[3] = 0xFF

	speedRaw := uint32(s.SpeedTenths) * 10
	if speedRaw > maxSpeedRaw {
		speedRaw = maxSpeedRaw
	}
	binary.BigEndian.PutUint16(buf[4:6], uint16(speedRaw+speedOffset))

	throttle := uint16(s.ThrottlePercent) * 2
	if throttle > throttleMax {
		throttle = throttleMax
	}
	buf[6] = uint8(throttle)
	buf[7] = 0xFF

	return Frame{ID: FramePCMStatus, Length: 8, Data: buf}
}

// DecodePCMStatus is the inverse of EncodePCMStatus over the legal domain.
// Short frames decode best-effort to zero values.
func DecodePCMStatus(data []byte) PCMStatus {
	var s PCMStatus
	if len(data) < 7 {
		return s
	}

	rpmRaw := uint32(binary.BigEndian.Uint16(data[0:2]))
	s.RPM = uint16((rpmRaw*rpmScaleDen + rpmScaleNum/2) / rpmScaleNum)

	speedRaw := binary.BigEndian.Uint16(data[4:6])
	if speedRaw > speedOffset {
		s.SpeedTenths = uint16((uint32(speedRaw-speedOffset) + 5) / 10)
	}

	throttle := data[6] / 2
	if throttle > maxThrottlePc {
		throttle = maxThrottlePc
	}
	s.ThrottlePercent = throttle

	return s
}

// ClusterTempToCelsiusTenths converts the cluster's temperature encoding
// (units * 10, 1450 = normal warm engine) to physical degrees * 10.
func ClusterTempToCelsiusTenths(encTenths int16) int16 {
	return int16((int32(encTenths) - 550) * 3 / 4)
}

// WarningLamps is the decoded form of frame 0x420. Field names follow the
// lamp each bit drives on the factory cluster.
type WarningLamps struct {
	CoolantTempTenths int16 // degrees * 10, CAN encoding units
	OdometerTicks     uint8 // wrapping distance increment
	OilPressureOK     bool  // byte 4: 1 = pressure OK
	CheckEngineMIL    bool  // byte 5 bit 6
	CheckEngineBL     bool  // byte 5 bit 7 (backlight)
	CatalystOverTemp  bool  // byte 6 bit 0
	LowCoolant        bool  // byte 6 bit 1
	EngineOverheat    bool  // byte 6 bit 5
	BatteryCharge     bool  // byte 6 bit 6
	OilPressureLamp   bool  // byte 6 bit 7
}

const (
	mil420CheckEngine = 0x40
	mil420Backlight   = 0x80

	warn420Catalyst = 0x01
	warn420Coolant  = 0x02
	warn420Overheat = 0x20
	warn420Battery  = 0x40
	warn420OilLamp  = 0x80
)

// EncodeWarnings builds frame 0x420 (7 bytes). The coolant temperature byte
// saturates at 0-255 in CAN encoding units.
func EncodeWarnings(w WarningLamps) Frame {
	var buf [8]byte

	temp := w.CoolantTempTenths / 10
	if temp < 0 {
		temp = 0
	}
	if temp > 255 {
		temp = 255
	}
	buf[0] = uint8(temp)
	buf[1] = w.OdometerTicks

	if w.OilPressureOK {
		buf[4] = 1
	}

	if w.CheckEngineMIL {
		buf[5] |= mil420CheckEngine
	}
	if w.CheckEngineBL {
		buf[5] |= mil420Backlight
	}

	if w.CatalystOverTemp {
		buf[6] |= warn420Catalyst
	}
	if w.LowCoolant {
		buf[6] |= warn420Coolant
	}
	if w.EngineOverheat {
		buf[6] |= warn420Overheat
	}
	if w.BatteryCharge {
		buf[6] |= warn420Battery
	}
	if w.OilPressureLamp {
		buf[6] |= warn420OilLamp
	}

	return Frame{ID: FrameWarnings, Length: 7, Data: buf}
}

// DecodeWarnings is the inverse of EncodeWarnings. The coolant byte decodes
// to the low end of its tenth-degree bucket.
func DecodeWarnings(data []byte) WarningLamps {
	var w WarningLamps
	if len(data) < 7 {
		return w
	}

	w.CoolantTempTenths = int16(data[0]) * 10
	w.OdometerTicks = data[1]
	w.OilPressureOK = data[4] == 1

	w.CheckEngineMIL = data[5]&mil420CheckEngine != 0
	w.CheckEngineBL = data[5]&mil420Backlight != 0

	w.CatalystOverTemp = data[6]&warn420Catalyst != 0
	w.LowCoolant = data[6]&warn420Coolant != 0
	w.EngineOverheat = data[6]&warn420Overheat != 0
	w.BatteryCharge = data[6]&warn420Battery != 0
	w.OilPressureLamp = data[6]&warn420OilLamp != 0

	return w
}

// DSCFlags is the decoded form of frame 0x212. Bit positions were validated
// against a running vehicle; the cluster only samples bytes 5 and 6.
type DSCFlags struct {
	DSCOff       bool // byte 5 bit 1
	ABSWarning   bool // byte 5 bit 2
	BrakeFailure bool // byte 5 bit 3
	ETCActive    bool // byte 5 bit 6
	ETCDisabled  bool // byte 6 bit 3
}

const (
	dsc212Off       = 0x02
	dsc212ABSWarn   = 0x04
	dsc212BrakeFail = 0x08
	dsc212ETCActive = 0x40
	dsc212ETCOff    = 0x08 // byte 6
)

// EncodeDSCStatus builds frame 0x212 (7 bytes).
func EncodeDSCStatus(d DSCFlags) Frame {
	var buf [8]byte

	if d.DSCOff {
		buf[5] |= dsc212Off
	}
	if d.ABSWarning {
		buf[5] |= dsc212ABSWarn
	}
	if d.BrakeFailure {
		buf[5] |= dsc212BrakeFail
	}
	if d.ETCActive {
		buf[5] |= dsc212ETCActive
	}
	if d.ETCDisabled {
		buf[6] |= dsc212ETCOff
	}

	return Frame{ID: FrameDSCStatus, Length: 7, Data: buf}
}

// DecodeDSCStatus is the inverse of EncodeDSCStatus.
func DecodeDSCStatus(data []byte) DSCFlags {
	var d DSCFlags
	if len(data) < 7 {
		return d
	}
	d.DSCOff = data[5]&dsc212Off != 0
	d.ABSWarning = data[5]&dsc212ABSWarn != 0
	d.BrakeFailure = data[5]&dsc212BrakeFail != 0
	d.ETCActive = data[5]&dsc212ETCActive != 0
	d.ETCDisabled = data[6]&dsc212ETCOff != 0
	return d
}

// WheelSpeeds is the decoded form of frame 0x4B1, all in km/h * 100.
type WheelSpeeds struct {
	FrontLeft  uint16
	FrontRight uint16
	RearLeft   uint16
	RearRight  uint16
}

// EncodeWheelSpeeds builds frame 0x4B1. Each wheel is (km/h * 100) + 10000
// big-endian; inputs above the representable range saturate.
func EncodeWheelSpeeds(w WheelSpeeds) Frame {
	var buf [8]byte
	putWheel(buf[0:2], w.FrontLeft)
	putWheel(buf[2:4], w.FrontRight)
	putWheel(buf[4:6], w.RearLeft)
	putWheel(buf[6:8], w.RearRight)
	return Frame{ID: FrameWheelSpeeds, Length: 8, Data: buf}
}

func putWheel(dst []byte, speed uint16) {
	raw := uint32(speed)
	if raw > maxSpeedRaw {
		raw = maxSpeedRaw
	}
	binary.BigEndian.PutUint16(dst, uint16(raw+speedOffset))
}

// DecodeWheelSpeeds is the inverse of EncodeWheelSpeeds. Raw values below
// the offset (seen during ABS unit power-up) decode to zero.
func DecodeWheelSpeeds(data []byte) WheelSpeeds {
	var w WheelSpeeds
	if len(data) < 8 {
		return w
	}
	w.FrontLeft = getWheel(data[0:2])
	w.FrontRight = getWheel(data[2:4])
	w.RearLeft = getWheel(data[4:6])
	w.RearRight = getWheel(data[6:8])
	return w
}

func getWheel(src []byte) uint16 {
	raw := binary.BigEndian.Uint16(src)
	if raw <= speedOffset {
		return 0
	}
	return raw - speedOffset
}

// Presence beacons: constant payloads captured from a stock PCM. Other
// modules only check that these arrive, not what they carry.
var (
	beacon203 = [8]byte{19, 19, 19, 19, 175, 3, 19}
	beacon215 = [8]byte{2, 45, 2, 45, 2, 42, 6, 129}
	beacon231 = [8]byte{15, 0, 255, 255, 0}
	beacon240 = [8]byte{4, 0, 40, 0, 2, 55, 6, 129}
)

// BeaconFrames returns the four constant presence-beacon frames.
func BeaconFrames() [4]Frame {
	return [4]Frame{
		{ID: FramePCMBeaconA, Length: 7, Data: beacon203},
		{ID: FramePCMBeaconB, Length: 8, Data: beacon215},
		{ID: FramePCMBeaconC, Length: 5, Data: beacon231},
		{ID: FramePCMBeaconD, Length: 8, Data: beacon240},
	}
}
