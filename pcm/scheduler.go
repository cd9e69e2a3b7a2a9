package pcm

import (
	"context"
	"sync"
	"time"
)

// DefaultCyclePeriod is the control loop rate. The cluster tolerates a wide
// range but the factory PCM transmits at roughly this interval.
const DefaultCyclePeriod = 100 * time.Millisecond

// rxBudget bounds how many inbound frames one cycle will drain, so a noisy
// bus cannot starve the transmit phase.
const rxBudget = 32

// defaultVoltageCentis is reported when no voltage source is wired
// (13.80 V, a healthy charging system).
const defaultVoltageCentis = 1380

// ThrottleSource supplies the pedal position each cycle. The binary wires a
// hardware ADC or the UI bridge; tests wire a fixed value.
type ThrottleSource interface {
	ThrottlePercent() uint8
}

// ThrottleFunc adapts a function to the ThrottleSource interface.
type ThrottleFunc func() uint8

func (f ThrottleFunc) ThrottlePercent() uint8 { return f() }

// VoltageSource supplies the system voltage in V * 100.
type VoltageSource interface {
	VoltageCentis() uint16
}

// VoltageFunc adapts a function to the VoltageSource interface.
type VoltageFunc func() uint16

func (f VoltageFunc) VoltageCentis() uint16 { return f() }

// SchedulerConfig carries the boot-time loop parameters.
type SchedulerConfig struct {
	CyclePeriod time.Duration

	// Throttle and Voltage may be nil; the loop then assumes closed pedal
	// and a nominal charging voltage.
	Throttle ThrottleSource
	Voltage  VoltageSource
}

// Scheduler is the single-writer control loop. Every cycle it drains the
// inbound queue, advances the immobilizer, profile and safety machines,
// recomputes the shared vehicle state and transmits the outbound frame set.
// All mutable state is owned by the loop goroutine; Snapshot hands out
// copies under a short lock.
type Scheduler struct {
	logger    Logger
	transport Transport
	cfg       SchedulerConfig

	immobilizer *Immobilizer
	wheels      *WheelSpeedProcessor
	profile     VehicleProfile
	abs         *ABSEmulator
	safety      *SafetySupervisor
	faults      *FaultStore
	obd         *OBDServer

	mu    sync.Mutex
	state VehicleState

	// commands carries externally requested actions onto the loop
	// goroutine so the state machines stay single-threaded.
	commands chan func()

	cycles uint64
}

// NewScheduler wires the loop. All collaborators are required except the
// throttle and voltage sources inside cfg.
func NewScheduler(
	cfg SchedulerConfig,
	transport Transport,
	immobilizer *Immobilizer,
	wheels *WheelSpeedProcessor,
	profile VehicleProfile,
	abs *ABSEmulator,
	safety *SafetySupervisor,
	faults *FaultStore,
	obd *OBDServer,
	logger Logger,
) *Scheduler {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = DefaultCyclePeriod
	}
	return &Scheduler{
		logger:      ensureLogger(logger),
		transport:   transport,
		cfg:         cfg,
		immobilizer: immobilizer,
		wheels:      wheels,
		profile:     profile,
		abs:         abs,
		safety:      safety,
		faults:      faults,
		obd:         obd,
		commands:    make(chan func(), 8),
	}
}

// Run executes the loop at the configured rate until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("control loop starting, period %v, profile %s",
		s.cfg.CyclePeriod, s.profile.Type())

	ticker := time.NewTicker(s.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("control loop stopping after %d cycles", s.cycles)
			return ctx.Err()
		case now := <-ticker.C:
			s.Cycle(now)
		}
	}
}

// Cycle runs one loop iteration at the given instant. Exposed so tests can
// drive virtual time instead of a ticker.
func (s *Scheduler) Cycle(now time.Time) {
	s.safety.Kick()
	s.drainCommands()
	s.drainInbound(now)
	s.immobilizer.Update(now)

	next := s.computeState(now)
	s.safety.Update(now)
	s.applyGates(&next)

	s.mu.Lock()
	next.OdometerTicks = s.state.OdometerTicks
	s.state = next
	s.mu.Unlock()

	s.transmit(next)
	s.cycles++
}

// drainInbound polls the transport up to the budget and dispatches each
// frame to its consumer.
func (s *Scheduler) drainInbound(now time.Time) {
	for i := 0; i < rxBudget; i++ {
		frame, ok := s.transport.Receive()
		if !ok {
			return
		}
		s.safety.RecordActivity(now)
		s.dispatch(frame, now)
	}
}

func (s *Scheduler) dispatch(frame Frame, now time.Time) {
	switch {
	case frame.ID == FrameImmoRequest:
		if resp, ok := s.immobilizer.HandleRequest(frame.Bytes(), now); ok {
			// Anti-theft responses go out immediately; the keyless module
			// times out fast and a missed reply restarts the handshake.
			if err := s.transport.Send(resp); err != nil {
				s.logger.Error("immobilizer response send failed: %v", err)
			}
		}

	case frame.ID == FrameWheelSpeeds:
		s.wheels.HandleFrame(frame.Bytes())

	case s.profile.HandleFrame(frame):
		// Consumed by the engine/motor backend.

	case s.obd != nil && s.obd.IsRequest(frame.ID):
		if resp, ok := s.obd.HandleRequest(frame.Bytes(), s.Snapshot()); ok {
			if err := s.transport.Send(resp); err != nil {
				s.logger.Error("diagnostic response send failed: %v", err)
			}
		}

	default:
		// Unknown traffic still counts as bus activity, nothing more.
	}
}

// computeState derives the next vehicle state from the inputs and models.
// Gating (immobilizer, failsafe) is applied afterwards so the raw model
// values stay observable in one place.
func (s *Scheduler) computeState(now time.Time) VehicleState {
	var next VehicleState

	throttle := uint8(0)
	if s.cfg.Throttle != nil {
		throttle = s.cfg.Throttle.ThrottlePercent()
		if throttle > maxThrottlePc {
			throttle = maxThrottlePc
		}
	}
	next.ThrottlePercent = throttle

	wheels := s.wheels.Speeds()
	next.WheelFL = wheels.FrontLeft
	next.WheelFR = wheels.FrontRight
	next.WheelRL = wheels.RearLeft
	next.WheelRR = wheels.RearRight

	speedHundredths, plausible := s.wheels.VehicleSpeed()
	next.SpeedTenths = speedHundredths / 10

	s.profile.Update(throttle, next.SpeedTenths)
	next.RPM = s.profile.RPM()
	next.CoolantTempTenths = s.profile.TemperatureTenths()

	next.BatteryVoltage = defaultVoltageCentis
	if s.cfg.Voltage != nil {
		next.BatteryVoltage = s.cfg.Voltage.VoltageCentis()
	}

	// Plausibility and range checks feed both the lamps and the fault
	// store. None of these escalate to failsafe on their own.
	wheelFault := s.wheels.HasData() && !plausible
	next.Warnings.ABSWarning = wheelFault
	// The ABS lamp bit only travels in the optional 0x212 frame; the MIL
	// is the lamp the driver is guaranteed to see.
	next.Warnings.CheckEngine = next.Warnings.CheckEngine || wheelFault
	s.faults.Set(DTCWheelSpeedPlausibility, wheelFault)

	// Range limits are physical degrees; the profile reports the cluster
	// encoding, where 145 is a normal warm engine.
	if !TemperatureInRange(ClusterTempToCelsiusTenths(next.CoolantTempTenths)) {
		next.Warnings.CheckEngine = true
		next.Warnings.CoolantLevel = true
	}

	s.faults.Set(DTCVoltageLow, next.BatteryVoltage < voltageMinCentis)
	s.faults.Set(DTCVoltageHigh, next.BatteryVoltage > voltageMaxCentis)
	if !VoltageInRange(next.BatteryVoltage) {
		next.Warnings.BatteryCharge = true
	}

	s.faults.Set(DTCCANBusTimeout, s.safety.SinceActivity(now) > s.safety.Timeout())

	return next
}

// applyGates overrides the computed state with the access-control and
// failsafe clamps. Order matters: failsafe wins over everything.
func (s *Scheduler) applyGates(next *VehicleState) {
	next.ImmobilizerUnlocked = s.immobilizer.Unlocked()
	if !next.ImmobilizerUnlocked {
		next.RPM = 0
		next.ThrottlePercent = 0
		next.Warnings.Immobilizer = true
	}
	s.faults.Set(DTCImmobilizerLocked, !next.ImmobilizerUnlocked)

	if s.safety.Level() == SafetyFailsafe {
		next.RPM = 0
		next.ThrottlePercent = 0
		next.Warnings.SetAll()
		next.FailsafeActive = true
	}
}

// transmit sends the outbound frame set. The status and warning frames are
// the priority pair: a failure there is retried next cycle, and the beacons
// yield the rest of the tick so the retry is not competing with filler.
func (s *Scheduler) transmit(state VehicleState) {
	backpressure := false

	status := EncodePCMStatus(PCMStatus{
		RPM:             state.RPM,
		SpeedTenths:     state.SpeedTenths,
		ThrottlePercent: state.ThrottlePercent,
	})
	if err := s.transport.Send(status); err != nil {
		s.logger.Error("status frame send failed: %v", err)
		backpressure = true
	}

	if err := s.transport.Send(EncodeWarnings(s.warningLamps(state))); err != nil {
		s.logger.Error("warning frame send failed: %v", err)
		backpressure = true
	} else {
		// The cluster integrates this wrapping tick into displayed mileage,
		// so it only advances when the frame actually went out.
		s.mu.Lock()
		s.state.OdometerTicks++
		s.mu.Unlock()
	}

	if backpressure {
		return
	}

	for _, beacon := range BeaconFrames() {
		if err := s.transport.Send(beacon); err != nil {
			s.logger.Error("beacon 0x%03X send failed: %v", beacon.ID, err)
		}
	}

	s.abs.SetFlags(DSCFlags{
		ABSWarning:   state.Warnings.ABSWarning,
		BrakeFailure: state.Warnings.BrakeFailure,
	})
	for _, frame := range s.abs.StaticFrames() {
		if err := s.transport.Send(frame); err != nil {
			s.logger.Error("ABS frame 0x%03X send failed: %v", frame.ID, err)
		}
	}
	if frame, ok := s.abs.DynamicFrame(); ok {
		if err := s.transport.Send(frame); err != nil {
			s.logger.Error("DSC frame send failed: %v", err)
		}
	}
}

// warningLamps maps the semantic warning flags onto the 0x420 wire fields.
func (s *Scheduler) warningLamps(state VehicleState) WarningLamps {
	s.mu.Lock()
	ticks := s.state.OdometerTicks
	s.mu.Unlock()

	return WarningLamps{
		CoolantTempTenths: state.CoolantTempTenths,
		OdometerTicks:     ticks,
		OilPressureOK:     !state.Warnings.OilPressure,
		CheckEngineMIL:    state.Warnings.CheckEngine,
		CheckEngineBL:     state.FailsafeActive,
		LowCoolant:        state.Warnings.CoolantLevel,
		BatteryCharge:     state.Warnings.BatteryCharge,
		OilPressureLamp:   state.Warnings.OilPressure,
	}
}

// Snapshot returns a copy of the shared vehicle state. Safe from any
// goroutine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cycles returns the number of completed loop iterations.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles
}

func (s *Scheduler) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			cmd()
		default:
			return
		}
	}
}

// enqueue hands an action to the loop goroutine. Full queue means the
// caller's command is dropped; external commands are advisory.
func (s *Scheduler) enqueue(cmd func()) {
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("command queue full, dropping request")
	}
}

// RequestEnterFailsafe latches the failsafe from outside the loop (the
// telemetry command channel uses this). Applied at the next cycle.
func (s *Scheduler) RequestEnterFailsafe(reason string) {
	s.enqueue(func() { s.safety.EnterFailsafe(reason) })
}

// RequestExitFailsafe clears a latched failsafe at the next cycle.
func (s *Scheduler) RequestExitFailsafe() {
	s.enqueue(func() { s.safety.ExitFailsafe() })
}

// RequestClearFaults empties the fault store at the next cycle.
func (s *Scheduler) RequestClearFaults() {
	s.enqueue(func() { s.faults.Clear() })
}
