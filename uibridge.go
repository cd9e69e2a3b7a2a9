package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"pcm-emulator/pcm"

	"go.bug.st/serial"
)

// Snapshot packet framing for the point-to-point serial link to the UI
// controller. The format is private between this sender and the matching
// display build; the version byte lets the two ends detect a mismatch.
const (
	uiPacketStart   = 0xAA
	uiPacketVersion = 1
)

// Warning bit positions in the packet's lamp byte.
const (
	uiLampCheckEngine = 1 << iota
	uiLampABS
	uiLampOilPressure
	uiLampCoolant
	uiLampBattery
	uiLampBrake
	uiLampImmobilizer
)

// EncodeStatePacket serializes a snapshot as one framed packet:
// start byte, payload length, payload, XOR checksum over the payload.
func EncodeStatePacket(s pcm.Snapshot) []byte {
	payload := make([]byte, 0, 14)
	payload = append(payload, uiPacketVersion)

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], s.RPM)
	payload = append(payload, u16[:]...)
	binary.BigEndian.PutUint16(u16[:], s.SpeedTenths)
	payload = append(payload, u16[:]...)
	payload = append(payload, s.ThrottlePercent)
	binary.BigEndian.PutUint16(u16[:], uint16(s.CoolantTempTenths))
	payload = append(payload, u16[:]...)
	binary.BigEndian.PutUint16(u16[:], s.BatteryVoltage)
	payload = append(payload, u16[:]...)

	var lamps uint8
	if s.Warnings.CheckEngine {
		lamps |= uiLampCheckEngine
	}
	if s.Warnings.ABSWarning {
		lamps |= uiLampABS
	}
	if s.Warnings.OilPressure {
		lamps |= uiLampOilPressure
	}
	if s.Warnings.CoolantLevel {
		lamps |= uiLampCoolant
	}
	if s.Warnings.BatteryCharge {
		lamps |= uiLampBattery
	}
	if s.Warnings.BrakeFailure {
		lamps |= uiLampBrake
	}
	if s.Warnings.Immobilizer {
		lamps |= uiLampImmobilizer
	}
	payload = append(payload, lamps)

	var flags uint8
	if s.ImmobilizerUnlocked {
		flags |= 0x01
	}
	if s.FailsafeActive {
		flags |= 0x02
	}
	payload = append(payload, flags)
	payload = append(payload, s.OdometerTicks)

	packet := make([]byte, 0, len(payload)+3)
	packet = append(packet, uiPacketStart, uint8(len(payload)))
	packet = append(packet, payload...)
	packet = append(packet, xorChecksum(payload))
	return packet
}

func xorChecksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// UIBridge pushes state packets over a serial link at a fixed rate. One-way;
// the display never talks back.
type UIBridge struct {
	log    *LeveledLogger
	port   serial.Port
	sched  *pcm.Scheduler
	period time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewUIBridge(portName string, baud int, period time.Duration, sched *pcm.Scheduler, logger *LeveledLogger) (*UIBridge, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &UIBridge{
		log:    logger,
		port:   port,
		sched:  sched,
		period: period,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go b.run()

	logger.Info("UI bridge started on %s @ %d baud, period %v", portName, baud, period)
	return b, nil
}

func (b *UIBridge) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	var writeFailures uint64
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			packet := EncodeStatePacket(b.sched.Snapshot())
			if _, err := b.port.Write(packet); err != nil {
				writeFailures++
				if writeFailures%100 == 1 {
					b.log.Warn("UI bridge write failed (%d total): %v", writeFailures, err)
				}
			}
		}
	}
}

func (b *UIBridge) Destroy() {
	b.cancel()
	<-b.done
	if err := b.port.Close(); err != nil {
		b.log.Warn("UI bridge port close: %v", err)
	}
}
