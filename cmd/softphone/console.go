package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"crm-dialer/internal/dialer"
)

const helpText = `commands:
  call <number> [from]   place a call
  hangup                 end the current call
  dtmf <digit>           send a touch-tone (0-9 * #) while active
  reset                  clear a finished call
  status                 show the current call
  quit                   hang up and exit
`

// console maps typed lines onto dialer intents.
type console struct {
	ctx context.Context
	m   *dialer.Machine

	mu  sync.Mutex
	out io.Writer

	wg   sync.WaitGroup
	last dialer.Snapshot
}

func newConsole(ctx context.Context, out io.Writer) *console {
	return &console{ctx: ctx, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// render prints state transitions and, while active, the elapsed time.
func (c *console) render(s dialer.Snapshot) {
	c.mu.Lock()
	prev := c.last
	c.last = s
	c.mu.Unlock()

	switch {
	case s.State != prev.State:
		line := "[" + string(s.State) + "]"
		if s.State == dialer.StateEnded && s.EndReason != "" {
			line += " " + s.EndReason
		}
		if s.Error != "" {
			line += " " + s.Error
		}
		c.printf("%s\n", line)
	case s.State == dialer.StateActive && s.ElapsedSeconds != prev.ElapsedSeconds:
		c.printf("\r%s", formatElapsed(s.ElapsedSeconds))
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "call", "dial":
		if len(fields) < 2 {
			c.printf("usage: call <number> [from]\n")
			return false
		}
		from := ""
		if len(fields) > 2 {
			from = fields[2]
		}
		// Placement blocks until the provider answers the request; keep the
		// prompt free so hangup works while connecting.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.m.StartCall(c.ctx, fields[1], from); err != nil {
				if errors.Is(err, dialer.ErrCallActive) {
					c.printf("a call is already in progress\n")
					return
				}
				c.printf("call failed: %v\n", err)
			}
		}()
	case "hangup", "h":
		c.m.HangUp()
	case "dtmf", "tone":
		if len(fields) != 2 {
			c.printf("usage: dtmf <digit>\n")
			return false
		}
		if c.m.Snapshot().State != dialer.StateActive {
			c.printf("tones are only sent while a call is active\n")
			return false
		}
		if err := c.m.SendTone(c.ctx, fields[1]); err != nil {
			c.printf("tone rejected: %v\n", err)
		}
	case "reset":
		if err := c.m.Reset(); err != nil {
			c.printf("cannot reset: %v\n", err)
		}
	case "status":
		s := c.m.Snapshot()
		c.printf("state=%s elapsed=%s correlation_id=%s provider_call_id=%s\n",
			s.State, formatElapsed(s.ElapsedSeconds), s.CorrelationID, s.ProviderCallID)
	case "help", "?":
		c.printf("%s", helpText)
	case "quit", "exit", "q":
		return true
	default:
		c.printf("unknown command %q; type help\n", fields[0])
	}
	return false
}

func (c *console) wait() { c.wg.Wait() }

// shutdown hangs up a live call and waits, at most grace, until the hangup
// request has reached the session. The session may be closed afterwards.
func (c *console) shutdown(grace time.Duration) error {
	// Ends a call still being placed so the pending StartCall returns.
	c.m.HangUp()
	c.wait()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return c.m.Shutdown(ctx)
}

func formatElapsed(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
