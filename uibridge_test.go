package main

import (
	"testing"

	"pcm-emulator/pcm"
)

func TestEncodeStatePacket_Framing(t *testing.T) {
	packet := EncodeStatePacket(pcm.Snapshot{})

	if packet[0] != uiPacketStart {
		t.Errorf("expected start byte 0xAA, got 0x%02X", packet[0])
	}
	payloadLen := int(packet[1])
	if len(packet) != payloadLen+3 {
		t.Errorf("packet length %d does not match declared payload %d", len(packet), payloadLen)
	}
	if packet[2] != uiPacketVersion {
		t.Errorf("expected version byte %d, got %d", uiPacketVersion, packet[2])
	}
}

func TestEncodeStatePacket_Checksum(t *testing.T) {
	s := pcm.Snapshot{
		RPM:               3500,
		SpeedTenths:       605,
		ThrottlePercent:   40,
		CoolantTempTenths: 1450,
		BatteryVoltage:    1380,
		OdometerTicks:     7,
	}
	packet := EncodeStatePacket(s)

	payload := packet[2 : len(packet)-1]
	if got := xorChecksum(payload); got != packet[len(packet)-1] {
		t.Errorf("checksum mismatch: computed 0x%02X, packet carries 0x%02X",
			got, packet[len(packet)-1])
	}

	// Corrupting any payload byte must break the checksum.
	for i := range payload {
		corrupted := append([]byte(nil), payload...)
		corrupted[i] ^= 0x01
		if xorChecksum(corrupted) == packet[len(packet)-1] {
			t.Errorf("checksum did not detect corruption at byte %d", i)
		}
	}
}

func TestEncodeStatePacket_Fields(t *testing.T) {
	s := pcm.Snapshot{
		RPM:             0x1234,
		SpeedTenths:     0x0102,
		ThrottlePercent: 55,
	}
	s.Warnings.CheckEngine = true
	s.Warnings.Immobilizer = true
	s.ImmobilizerUnlocked = false
	s.FailsafeActive = true

	packet := EncodeStatePacket(s)
	payload := packet[2 : len(packet)-1]

	if payload[1] != 0x12 || payload[2] != 0x34 {
		t.Errorf("RPM bytes: %02X %02X", payload[1], payload[2])
	}
	if payload[3] != 0x01 || payload[4] != 0x02 {
		t.Errorf("speed bytes: %02X %02X", payload[3], payload[4])
	}
	if payload[5] != 55 {
		t.Errorf("throttle byte: %d", payload[5])
	}

	lamps := payload[10]
	if lamps&uiLampCheckEngine == 0 || lamps&uiLampImmobilizer == 0 {
		t.Errorf("lamp byte 0x%02X missing expected bits", lamps)
	}
	if lamps&uiLampABS != 0 {
		t.Errorf("lamp byte 0x%02X has unexpected bits", lamps)
	}

	flags := payload[11]
	if flags&0x01 != 0 {
		t.Error("unlocked flag must be clear")
	}
	if flags&0x02 == 0 {
		t.Error("failsafe flag must be set")
	}
}
