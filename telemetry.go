package main

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pcm-emulator/pcm"

	"github.com/go-redis/redis/v8"
)

const (
	telemetryHashKey        = "pcm-emulator"
	telemetryFaultSetKey    = "pcm-emulator:fault"
	telemetryEventStream    = "events:faults"
	telemetryEventStreamMax = 1000
	telemetryChannel        = "pcm-emulator"
	telemetryCommandChannel = "pcm-emulator:commands"

	telemetryPushPeriod = 500 * time.Millisecond
	faultEventQueueSize = 32
)

type faultEvent struct {
	code    pcm.DTC
	present bool
}

// ThrottleInput is the pedal position fed in over the command channel
// (bench setups without a hardware pedal). Satisfies pcm.ThrottleSource.
type ThrottleInput struct {
	percent atomic.Uint32
}

func (t *ThrottleInput) ThrottlePercent() uint8 {
	return uint8(t.percent.Load())
}

func (t *ThrottleInput) set(percent uint8) {
	if percent > 100 {
		percent = 100
	}
	t.percent.Store(uint32(percent))
}

// Telemetry mirrors the vehicle state into Redis and relays operator
// commands back to the control loop. Strictly one-way in each direction
// and fire-and-forget: Redis being down never feeds back into the loop.
type Telemetry struct {
	log   *LeveledLogger
	redis *redis.Client
	sched *pcm.Scheduler

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	events   chan faultEvent
	commands *redis.PubSub
	throttle *ThrottleInput

	lastState pcm.Snapshot
	published bool
}

func NewTelemetry(logger *LeveledLogger, client *redis.Client, sched *pcm.Scheduler, throttle *ThrottleInput) *Telemetry {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Telemetry{
		log:      logger,
		redis:    client,
		sched:    sched,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan faultEvent, faultEventQueueSize),
		throttle: throttle,
	}

	t.commands = client.Subscribe(ctx, telemetryCommandChannel)

	go t.pushLoop()
	go t.commandLoop()

	return t
}

// FaultChanged is the FaultStore edge listener. Runs on the control loop
// goroutine, so it only enqueues; a full queue drops the event.
func (t *Telemetry) FaultChanged(code pcm.DTC, present bool) {
	select {
	case t.events <- faultEvent{code: code, present: present}:
	default:
		t.log.Warn("fault event queue full, dropping %s", code)
	}
}

func (t *Telemetry) pushLoop() {
	ticker := time.NewTicker(telemetryPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case ev := <-t.events:
			t.reportFault(ev)
		case <-ticker.C:
			t.publishSnapshot()
		}
	}
}

func (t *Telemetry) publishSnapshot() {
	state := t.sched.Snapshot()

	pipe := t.redis.Pipeline()
	pipe.HSet(t.ctx, telemetryHashKey, map[string]interface{}{
		"rpm":         state.RPM,
		"speed":       state.SpeedTenths,
		"throttle":    state.ThrottlePercent,
		"temperature": state.CoolantTempTenths,
		"voltage":     state.BatteryVoltage,
		"odometer":    state.OdometerTicks,
		"immobilizer": map[bool]string{true: "unlocked", false: "locked"}[state.ImmobilizerUnlocked],
		"failsafe":    map[bool]string{true: "active", false: "inactive"}[state.FailsafeActive],
	})

	// Notify subscribers only when the gating state flips; the raw values
	// change every push and are polled from the hash instead.
	if !t.published ||
		state.FailsafeActive != t.lastState.FailsafeActive ||
		state.ImmobilizerUnlocked != t.lastState.ImmobilizerUnlocked {
		pipe.Publish(t.ctx, telemetryChannel, "state")
	}

	if _, err := pipe.Exec(t.ctx); err != nil {
		t.log.Warn("telemetry publish failed: %v", err)
		return
	}

	t.lastState = state
	t.published = true
}

func (t *Telemetry) reportFault(ev faultEvent) {
	pipe := t.redis.Pipeline()

	values := map[string]interface{}{
		"group": telemetryHashKey,
		"code":  ev.code.String(),
	}
	if ev.present {
		pipe.SAdd(t.ctx, telemetryFaultSetKey, ev.code.String())
		values["description"] = pcm.Describe(ev.code)
	} else {
		pipe.SRem(t.ctx, telemetryFaultSetKey, ev.code.String())
		values["cleared"] = 1
	}

	pipe.XAdd(t.ctx, &redis.XAddArgs{
		Stream: telemetryEventStream,
		MaxLen: telemetryEventStreamMax,
		Values: values,
	})

	pipe.Publish(t.ctx, telemetryChannel, "fault")

	if _, err := pipe.Exec(t.ctx); err != nil {
		t.log.Warn("fault report failed: %v", err)
	}
}

// commandLoop relays operator commands to the scheduler's command queue.
func (t *Telemetry) commandLoop() {
	t.log.Info("Starting telemetry command handler")

	for {
		msg, err := t.commands.Receive(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.Error("command subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			t.handleCommand(m.Payload)
		case *redis.Subscription:
			t.log.Debug("command subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (t *Telemetry) handleCommand(payload string) {
	if rest, ok := strings.CutPrefix(payload, "throttle:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || n > 100 {
			t.log.Warn("invalid throttle command %q", payload)
			return
		}
		if t.throttle != nil {
			t.throttle.set(uint8(n))
		}
		return
	}

	switch payload {
	case "exit-failsafe":
		t.log.Info("operator command: exit failsafe")
		t.sched.RequestExitFailsafe()
	case "enter-failsafe":
		t.log.Info("operator command: enter failsafe")
		t.sched.RequestEnterFailsafe("operator request")
	case "clear-faults":
		t.log.Info("operator command: clear faults")
		t.sched.RequestClearFaults()
	default:
		t.log.Warn("unknown command %q", payload)
	}
}

func (t *Telemetry) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.commands != nil {
		t.commands.Close()
	}
}
