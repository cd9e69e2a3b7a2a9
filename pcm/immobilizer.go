package pcm

import "time"

// ImmobilizerState tracks progress through the keyless module handshake.
type ImmobilizerState int

const (
	ImmobilizerLocked ImmobilizerState = iota
	ImmobilizerHandshake1Done
	ImmobilizerUnlocked
)

func (s ImmobilizerState) String() string {
	switch s {
	case ImmobilizerHandshake1Done:
		return "handshake1-done"
	case ImmobilizerUnlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// DefaultRelockTimeout is how long the session survives without any
// qualifying request from the keyless module before it relocks. Inherited
// from the donor firmware; not yet validated against real KCM tolerances.
const DefaultRelockTimeout = 5 * time.Second

// Fixed handshake byte patterns. The keyless module sends requests on
// 0x047; we answer on 0x041. These values are not configurable - they are
// the anti-theft protocol of the platform.
var (
	immoResponseA = [8]byte{7, 12, 48, 242, 23, 0, 0, 0}
	immoResponseB = [8]byte{129, 127, 0, 0, 0, 0, 0, 0}
)

func isImmoRequestA(data []byte) bool {
	return len(data) >= 3 && data[1] == 127 && data[2] == 2
}

func isImmoRequestB(data []byte) bool {
	return len(data) >= 3 && data[1] == 92 && data[2] == 244
}

// Immobilizer runs the two-step challenge/response handshake that gates
// vehicle operation. It is an access-control gate: the scheduler zeroes
// throttle and RPM output until the session is Unlocked.
//
// Single-threaded; only the control loop touches it.
type Immobilizer struct {
	logger        Logger
	relockTimeout time.Duration

	state       ImmobilizerState
	lastRequest time.Time
	handshakes  uint32 // completed full handshakes, for diagnostics
}

// NewImmobilizer creates a session in the Locked state.
func NewImmobilizer(relockTimeout time.Duration, logger Logger) *Immobilizer {
	if relockTimeout <= 0 {
		relockTimeout = DefaultRelockTimeout
	}
	return &Immobilizer{
		logger:        ensureLogger(logger),
		relockTimeout: relockTimeout,
		state:         ImmobilizerLocked,
	}
}

// HandleRequest processes one 0x047 frame and returns the 0x041 response to
// transmit, if any. Non-matching requests cause no transition and no
// transmission; they are logged and dropped.
func (im *Immobilizer) HandleRequest(data []byte, now time.Time) (Frame, bool) {
	switch {
	case isImmoRequestA(data):
		im.logger.Info("immobilizer: handshake 1/2 received, sending response A")
		if im.state == ImmobilizerLocked {
			im.state = ImmobilizerHandshake1Done
		}
		// A re-handshake while Unlocked refreshes the session without
		// demoting it; dropping motive output mid-drive is not acceptable.
		im.lastRequest = now
		return Frame{ID: FrameImmoResponse, Length: 8, Data: immoResponseA}, true

	case isImmoRequestB(data):
		if im.state == ImmobilizerLocked {
			// Request B without a prior request A does not unlock; the
			// keyless module restarts the sequence itself.
			im.logger.Warn("immobilizer: handshake 2/2 out of order, ignoring")
			return Frame{}, false
		}
		im.logger.Info("immobilizer: handshake 2/2 received, vehicle unlocked")
		im.state = ImmobilizerUnlocked
		im.lastRequest = now
		im.handshakes++
		return Frame{ID: FrameImmoResponse, Length: 8, Data: immoResponseB}, true

	default:
		im.logger.Debug("immobilizer: unrecognized request % X", data)
		return Frame{}, false
	}
}

// Update applies the defensive relock: an Unlocked session with no
// qualifying request within the timeout reverts to Locked. Called once per
// cycle.
func (im *Immobilizer) Update(now time.Time) {
	if im.state == ImmobilizerUnlocked && now.Sub(im.lastRequest) > im.relockTimeout {
		im.logger.Warn("immobilizer: no keyless module traffic for %v, relocking", im.relockTimeout)
		im.state = ImmobilizerLocked
	}
}

// State returns the current session state.
func (im *Immobilizer) State() ImmobilizerState {
	return im.state
}

// Unlocked reports whether motive output is permitted.
func (im *Immobilizer) Unlocked() bool {
	return im.state == ImmobilizerUnlocked
}

// HandshakeCount returns the number of completed handshakes since boot.
func (im *Immobilizer) HandshakeCount() uint32 {
	return im.handshakes
}
