// internal/session/supervisor.go
//
// Supervisor runs the two background threads a Session needs per spec §4.2:
// a health probe that drives reconnection, and an optional heartbeat that
// lets the PLC observe the gateway is alive. Both are grounded on
// original_source/gateway/plc/client.go's monitor_task/heart_task, rewritten
// as goroutines with a cooperative stop channel in the teacher's idiom
// (internal/service/plcmanager.go's ctx/cancel/wg goroutine lifecycle).
package session

import (
	"log"
	"sync"
	"time"
)

// State is one node of the supervisor's connection state machine.
type State string

const (
	StateInit         State = "init"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateShutdown     State = "shutdown"
)

// Supervisor owns the probe and heartbeat goroutines for one Session.
type Supervisor struct {
	sess          *Session
	checkInterval time.Duration
	probeDB       int
	probeOffset   int

	heartbeatEnabled bool
	heartbeatDB      int
	heartbeatOffset  int
	heartbeatBit     int

	mu    sync.Mutex
	state State

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSupervisor creates a supervisor that probes (probeDB, probeOffset)
// every checkInterval to decide liveness.
func NewSupervisor(sess *Session, checkInterval time.Duration, probeDB, probeOffset int) *Supervisor {
	return &Supervisor{
		sess:          sess,
		checkInterval: checkInterval,
		probeDB:       probeDB,
		probeOffset:   probeOffset,
		state:         StateInit,
		stop:          make(chan struct{}),
	}
}

// EnableHeartbeat configures the heartbeat bit. Call on at most one
// Supervisor per PLC (spec §4.2: "at most one Session per PLC").
func (sv *Supervisor) EnableHeartbeat(db, offset, bit int) {
	sv.heartbeatEnabled = true
	sv.heartbeatDB = db
	sv.heartbeatOffset = offset
	sv.heartbeatBit = bit
}

func (sv *Supervisor) setState(s State) {
	sv.mu.Lock()
	prev := sv.state
	sv.state = s
	sv.mu.Unlock()
	if prev != s {
		log.Printf("session %s: %s -> %s", sv.sess.cfg.Name, prev, s)
	}
}

// State returns the current connection state.
func (sv *Supervisor) State() State {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state
}

// Start launches the probe goroutine and, if configured, the heartbeat
// goroutine.
func (sv *Supervisor) Start() {
	sv.setState(StateConnecting)
	sv.wg.Add(1)
	go sv.runProbe()
	if sv.heartbeatEnabled {
		sv.wg.Add(1)
		go sv.runHeartbeat()
	}
}

// Stop signals both goroutines to exit, waits for them, and closes the
// underlying socket.
func (sv *Supervisor) Stop() {
	close(sv.stop)
	sv.wg.Wait()
	sv.setState(StateShutdown)
	if err := sv.sess.Disconnect(); err != nil {
		log.Printf("session %s: erro ao fechar socket no shutdown: %v", sv.sess.cfg.Name, err)
	}
}

func (sv *Supervisor) runProbe() {
	defer sv.wg.Done()
	ticker := time.NewTicker(sv.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sv.stop:
			return
		case <-ticker.C:
			if sv.State() == StateDisconnected {
				if err := sv.sess.Reconnect(); err != nil {
					log.Printf("session %s: reconexão falhou: %v", sv.sess.cfg.Name, err)
					continue
				}
			}
			_, err := sv.sess.ReadRange(sv.probeDB, sv.probeOffset, 1)
			if err != nil {
				sv.setState(StateDisconnected)
				continue
			}
			sv.setState(StateConnected)
		}
	}
}

func (sv *Supervisor) runHeartbeat() {
	defer sv.wg.Done()
	ticker := time.NewTicker(sv.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sv.stop:
			return
		case <-ticker.C:
			if err := sv.sess.ToggleBit(sv.heartbeatDB, sv.heartbeatOffset, sv.heartbeatBit); err != nil {
				log.Printf("session %s: heartbeat falhou: %v", sv.sess.cfg.Name, err)
			}
		}
	}
}
