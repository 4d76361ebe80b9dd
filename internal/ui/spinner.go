package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner animates a single terminal line while a CLI phase blocks.
type SimpleSpinner struct {
	message  string
	frames   []string
	interval time.Duration
	done     chan struct{}
	stop     sync.Once
}

// NewConnectionSpinner creates a spinner for network operations (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner creates a spinner for waiting on external events (Points style)
func NewWaitingSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Points, 100*time.Millisecond)
}

func newSpinner(message string, sp spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		message:  message,
		frames:   sp.Frames,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *SimpleSpinner) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				frame := SpinnerStyle.Render(s.frames[i%len(s.frames)])
				fmt.Printf("\r%s %s", frame, s.message)
			}
		}
	}()
}

// Stop clears the spinner line. Safe to call from any goroutine and more
// than once.
func (s *SimpleSpinner) Stop() {
	s.stop.Do(func() {
		close(s.done)
		fmt.Print("\r\033[K")
	})
}

// RunConnectionSpinner starts a connection spinner and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
