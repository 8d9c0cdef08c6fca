package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter renders a single-line scan countdown on stdout, e.g.
// "Scanning for heart-rate devices (Scanning 7s)". Output is suppressed
// entirely when stdout is not a terminal, so piped and redirected output
// stays clean.
//
// Usage:
//
//	p := NewCountdownPrinter(...)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Start may be called at most once, and the
// caller must call Stop to terminate the internal goroutine; after Stop the
// instance cannot be restarted.
type ProgressPrinter struct {
	prefix      string
	duration    time.Duration
	phase       atomic.Value        // stores string - current phase name
	stopPhases  map[string]struct{} // phases that trigger a graceful shutdown
	startTime   time.Time
	ticker      atomic.Pointer[time.Ticker]
	stopChan    chan struct{}
	done        chan struct{} // closed when the goroutine exits
	started     atomic.Bool   // ensures Start is called at most once
	interactive bool          // stdout is a terminal
}

// NewCountdownPrinter creates a progress printer that counts down from
// duration. stopPhases are phase names that trigger automatic cleanup when
// reported via Callback.
func NewCountdownPrinter(prefix string, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{})
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		prefix:      prefix,
		duration:    duration,
		stopPhases:  stopSet,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	if p.stopChan != nil {
		panic("ProgressPrinter cannot be reused after Stop")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	p.printProgress(p.phase.Load().(string), int(p.duration.Seconds()+0.5))

	go p.progressLoop(ticker)
}

func (p *ProgressPrinter) progressLoop(ticker *time.Ticker) {
	defer close(p.done)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			currentPhase := p.phase.Load().(string)
			if _, isStopPhase := p.stopPhases[currentPhase]; isStopPhase {
				return
			}

			remaining := p.duration - time.Since(p.startTime)
			if remaining <= 0 {
				// Show 0s once the countdown completes; the scan decides
				// when to stop, not the printer.
				remaining = 0
			}
			// Round to the nearest second so 3.7s shows as 4s, not 3s.
			p.printProgress(currentPhase, int(remaining.Seconds()+0.5))
		}
	}
}

func (p *ProgressPrinter) printProgress(phase string, seconds int) {
	if !p.interactive {
		return
	}
	if seconds > 0 {
		fmt.Printf("\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Printf("\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a progress callback that updates the displayed phase.
// Reporting a stop phase stops the printer. Safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, isStopPhase := p.stopPhases[phase]; isStopPhase {
			p.Stop()
		}
	}
}

// Stop stops the progress display and clears the line. Safe to call multiple
// times and from multiple goroutines; only the first call stops the ticker
// and waits for the goroutine to finish.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // already stopped
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	if p.interactive {
		fmt.Print(clearLineSequence)
	}
}
