package reader

import (
	"reflect"
	"sync"
	"time"

	"github.com/mercuryrf/reader/internal/rlog"
)

// engineState is the per-worker lifecycle state machine from spec §4.7:
// Idle -> Arming -> Running -> Draining -> Idle.
type engineState int

const (
	engineIdle engineState = iota
	engineArming
	engineRunning
	engineDraining
)

// ReadMode selects polled ("background reader") or continuous ("true
// async") background read behavior.
type ReadMode int

const (
	ModePolled ReadMode = iota
	ModeContinuous
)

const (
	tagQueueCapacity       = 256
	exceptionQueueCapacity = 64
)

// backgroundEngine runs inventory in a loop (polled or continuous), fans
// results out to the tag/exception queues, and drains them through notifier
// goroutines into the listener hub. Exactly one reader goroutine, one
// tag-notifier goroutine, and one exception-notifier goroutine run at a time
// (spec §5).
type backgroundEngine struct {
	codec   *commandCodec
	hub     *listenerHub
	cmdLock *sync.Mutex // ReaderCore's command mutex; shared with sync ops

	mu    sync.Mutex
	state engineState

	tagQueue chan TagReadData
	excQueue chan error
	stop     chan struct{}
	done     chan struct{} // closed once both workers have exited

	mode          ReadMode
	asyncOnTime   time.Duration
	asyncOffTime  time.Duration
	antenna       int
	protocol      Protocol

	stopOnce sync.Once
}

func newBackgroundEngine(codec *commandCodec, hub *listenerHub, cmdLock *sync.Mutex) *backgroundEngine {
	return &backgroundEngine{codec: codec, hub: hub, cmdLock: cmdLock, state: engineIdle}
}

func (e *backgroundEngine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == engineRunning || e.state == engineArming
}

// start transitions Idle -> Arming -> Running. It resolves default listeners
// per spec §4.7 ("inject defaults only when absent, recomputed at each arm")
// then launches the reader, notifier, and exception-notifier goroutines.
func (e *backgroundEngine) start(mode ReadMode, onTime, offTime time.Duration, antenna int, proto Protocol) error {
	e.mu.Lock()
	if e.state != engineIdle {
		e.mu.Unlock()
		return newProgrammerFault("InvalidArgument", "background read already active")
	}
	e.state = engineArming
	e.mode = mode
	e.asyncOnTime = onTime
	e.asyncOffTime = offTime
	e.antenna = antenna
	e.protocol = proto
	e.tagQueue = make(chan TagReadData, tagQueueCapacity)
	e.excQueue = make(chan error, exceptionQueueCapacity)
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.stopOnce = sync.Once{}
	e.mu.Unlock()

	// Drop a default injected by an earlier arm so it is re-decided now.
	e.hub.read.remove(func(l ReadListener) bool {
		return reflect.ValueOf(l).Pointer() == reflect.ValueOf(defaultReadListener).Pointer()
	})
	e.hub.exception.remove(func(l ExceptionListener) bool {
		return reflect.ValueOf(l).Pointer() == reflect.ValueOf(defaultExceptionListener).Pointer()
	})
	if e.hub.read.len() == 0 {
		e.hub.read.add(defaultReadListener)
	}
	if e.hub.exception.len() == 0 {
		e.hub.exception.add(defaultExceptionListener)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.notifyTags() }()
	go func() { defer wg.Done(); e.notifyExceptions() }()
	go func() {
		defer wg.Done()
		// signalStop also covers the case where the reader goroutine exits
		// on its own (fatal comm fault) without a caller ever invoking
		// stopReading: the notifier goroutines must still unblock.
		defer e.signalStop()
		if mode == ModeContinuous {
			e.runContinuous()
		} else {
			e.runPolled()
		}
	}()
	go func() {
		wg.Wait()
		close(e.done)
		e.mu.Lock()
		if e.state == engineRunning || e.state == engineArming {
			e.state = engineIdle
		}
		e.mu.Unlock()
	}()

	e.mu.Lock()
	e.state = engineRunning
	e.mu.Unlock()
	rlog.Debugf("background read armed: mode=%d antenna=%d onTime=%s offTime=%s", mode, antenna, onTime, offTime)
	e.hub.notifyStatus("background read armed")
	return nil
}

// stopReading transitions Running -> Draining -> Idle. It signals the reader
// goroutine to exit, waits for all three goroutines to finish, and only
// then returns — by which point both queues are empty and no further
// listener callbacks will occur (spec invariant #7). Never raises.
func (e *backgroundEngine) stopReading() {
	e.mu.Lock()
	if e.state != engineRunning && e.state != engineArming {
		e.mu.Unlock()
		return
	}
	e.state = engineDraining
	done := e.done
	e.mu.Unlock()

	e.signalStop()
	<-done

	e.mu.Lock()
	e.state = engineIdle
	e.mu.Unlock()
	rlog.Debugf("background read stopped")
	e.hub.notifyStatus("background read stopped")
}

func (e *backgroundEngine) signalStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *backgroundEngine) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// runPolled implements the polled mode of spec §4.7: repeatedly call read,
// enqueue tags, sleep asyncOffTime if positive. A persistent read error
// clears the engine and parks.
func (e *backgroundEngine) runPolled() {
	for !e.stopped() {
		e.cmdLock.Lock()
		tags, err := e.codec.readTagIDMultiple(int(e.asyncOnTime/time.Millisecond), e.antenna, e.protocol)
		e.cmdLock.Unlock()
		if err != nil {
			rlog.Tracef("polled read failed: %v", err)
			e.pushException(err)
			if isFatalCommFault(err) {
				rlog.Debugf("polled background read parking after fatal comm fault: %v", err)
				return
			}
		} else {
			for _, t := range tags {
				e.pushTag(t)
			}
		}
		if e.stopped() {
			return
		}
		if e.asyncOffTime > 0 {
			select {
			case <-time.After(e.asyncOffTime):
			case <-e.stop:
				return
			}
		}
	}
}

// runContinuous implements the continuous mode of spec §4.7: arm once, then
// read streamed reports until stop. TAG_ID_BUFFER_FULL re-arms locally;
// Timeout/InvalidArgument stop the engine; No Antenna is surfaced but does
// not stop it. Per the open question in spec §9, the same fault is both
// pushed to the exception queue and used to decide whether to stop.
// Continuous mode holds the command mutex for the whole streaming session
// (spec §5: "in continuous mode it holds a streaming read and must be
// stopped before another command can run"), so a caller's synchronous
// command blocks until stopReading completes.
func (e *backgroundEngine) runContinuous() {
	e.cmdLock.Lock()
	defer e.cmdLock.Unlock()

	if err := e.codec.startContinuousRead(e.antenna, e.protocol); err != nil {
		e.pushException(err)
		return
	}
	defer e.codec.stopContinuousRead()

	for !e.stopped() {
		tags, err := e.codec.readStreamedReport(e.protocol, e.asyncOnTime)
		if err != nil {
			rlog.Tracef("continuous read fault: %v", err)
			e.pushException(err)
			if isTagIDBufferFull(err) {
				rlog.Debugf("continuous read buffer full, re-arming")
				if err := e.codec.startContinuousRead(e.antenna, e.protocol); err != nil {
					return
				}
				continue
			}
			if isNoAntenna(err) {
				continue
			}
			return
		}
		for _, t := range tags {
			e.pushTag(t)
		}
	}
}

func isFatalCommFault(err error) bool {
	cf, ok := err.(*CommFault)
	return ok && (cf.Kind == "Closed" || cf.Kind == "IOError")
}

func isTagIDBufferFull(err error) bool {
	rce, ok := err.(*ReaderCodeException)
	return ok && rce.Code == 0x0400
}

func isNoAntenna(err error) bool {
	rce, ok := err.(*ReaderCodeException)
	return ok && rce.Code == 0x0201
}

func (e *backgroundEngine) pushTag(t TagReadData) {
	select {
	case e.tagQueue <- t:
	case <-e.stop:
	}
}

func (e *backgroundEngine) pushException(err error) {
	select {
	case e.excQueue <- err:
	case <-e.stop:
	}
}

// notifyTags drains the tag queue into read listeners until the stop signal
// is set and the queue is empty, preserving per-cycle delivery order.
func (e *backgroundEngine) notifyTags() {
	for {
		select {
		case t := <-e.tagQueue:
			e.hub.notifyRead(t)
		case <-e.stop:
			for {
				select {
				case t := <-e.tagQueue:
					e.hub.notifyRead(t)
				default:
					return
				}
			}
		}
	}
}

// notifyExceptions drains the exception queue into exception listeners,
// symmetric to notifyTags.
func (e *backgroundEngine) notifyExceptions() {
	for {
		select {
		case err := <-e.excQueue:
			e.hub.notifyException(err)
		case <-e.stop:
			for {
				select {
				case err := <-e.excQueue:
					e.hub.notifyException(err)
				default:
					return
				}
			}
		}
	}
}
