package connection

// machine is the pure part of the Manager: connection state, the reconnect attempt
// counter, and the two external conditions that gate automatic reconnects.
type machine struct {
	state       State
	attempts    int
	maxAttempts int
	online      bool
	foreground  bool
}

func newMachine(maxAttempts int) machine {
	return machine{
		state:       StateDisconnected,
		maxAttempts: maxAttempts,
		online:      true,
		foreground:  true,
	}
}

type eventKind int

const (
	evConnect    eventKind = iota // Connect called
	evOpened                      // Transport reported open
	evOpenFailed                  // Transport failed before open
	evClosed                      // Transport reported close
	evDisconnect                  // Disconnect called
	evNetwork                     // reachability changed
	evAppState                    // app lifecycle changed
)

type event struct {
	kind   eventKind
	code   int
	err    error
	online bool
	app    AppState
}

type effectKind int

const (
	effOpen              effectKind = iota // open a Transport
	effCloseConn                           // close the Transport with CloseNormal
	effStartProbe                          // arm the liveness probe
	effStopProbe                           // cancel the liveness probe
	effScheduleReconnect                   // arm the reconnect timer for effect.attempt
	effCancelReconnect                     // cancel the reconnect timer
	effTriggerConnect                      // call Connect on behalf of a monitor
	effRecordError                         // set the connection error
	effClearError                          // clear the connection error
)

type effect struct {
	kind    effectKind
	attempt int
	err     error
}

// step returns the machine after ev and the effects the Manager must perform, in order.
func step(m machine, ev event) (machine, []effect) {
	switch ev.kind {
	case evConnect:
		if m.state != StateDisconnected || !m.online {
			return m, nil
		}
		m.state = StateConnecting
		return m, []effect{{kind: effClearError}, {kind: effOpen}}

	case evOpened:
		if m.state != StateConnecting {
			return m, nil
		}
		m.state = StateConnected
		m.attempts = 0
		return m, []effect{{kind: effCancelReconnect}, {kind: effStartProbe}}

	case evOpenFailed:
		if m.state != StateConnecting {
			return m, nil
		}
		m.state = StateDisconnected
		effects := []effect{{kind: effRecordError, err: ev.err}}
		return m.retry(effects)

	case evClosed:
		if m.state == StateDisconnected {
			return m, nil
		}
		m.state = StateDisconnected
		effects := []effect{{kind: effStopProbe}}
		if ev.code == CloseNormal {
			return m, append(effects, effect{kind: effCancelReconnect})
		}
		return m.retry(effects)

	case evDisconnect:
		m.state = StateDisconnected
		return m, []effect{{kind: effCancelReconnect}, {kind: effStopProbe}, {kind: effCloseConn}}

	case evNetwork:
		restored := !m.online && ev.online
		m.online = ev.online
		if restored && m.state == StateDisconnected {
			return m, []effect{{kind: effTriggerConnect}}
		}
		return m, nil

	case evAppState:
		foreground := ev.app == AppActive
		resumed := !m.foreground && foreground
		m.foreground = foreground
		if resumed && m.state == StateDisconnected && m.online {
			return m, []effect{{kind: effTriggerConnect}}
		}
		return m, nil
	}

	return m, nil
}

// retry appends a reconnect when the app is foregrounded, the network is up, and the
// attempt budget is not spent. attempts counts scheduled reconnects, so the nth one
// uses exponent n-1.
func (m machine) retry(effects []effect) (machine, []effect) {
	if !m.foreground || !m.online || m.attempts >= m.maxAttempts {
		return m, effects
	}
	effects = append(effects, effect{kind: effScheduleReconnect, attempt: m.attempts})
	m.attempts++
	return m, effects
}
