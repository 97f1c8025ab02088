package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/samber/lo"
)

// ErrNoBindAddr is matched by a BindError when every address was busy.
var ErrNoBindAddr = errors.New("no free controller bind address")

// BindPlan lists where the controller API may listen. Preferred comes from
// SHOTOVER_BIND_ADDR, Candidates from SHOTOVER_PORT_CANDIDATES and
// AutoFallback from SHOTOVER_PORT_AUTO_FALLBACK.
type BindPlan struct {
	Preferred    string
	Candidates   []string
	AutoFallback bool
}

// BindError reports the addresses that were tried and found busy.
type BindError struct {
	Busy []string
	// Fallback is false when the preferred address was busy and fallback
	// was turned off.
	Fallback bool
}

func (e *BindError) Error() string {
	if !e.Fallback {
		return fmt.Sprintf("SHOTOVER_BIND_ADDR %s is in use and SHOTOVER_PORT_AUTO_FALLBACK is off", strings.Join(e.Busy, ", "))
	}
	return fmt.Sprintf("%s: tried %s", ErrNoBindAddr, strings.Join(e.Busy, ", "))
}

func (e *BindError) Is(target error) bool { return target == ErrNoBindAddr }

// SelectBindAddr returns the first free address of the plan: the preferred
// one, then each candidate in order when fallback is on. Malformed addresses
// are errors rather than busy ports.
func SelectBindAddr(plan BindPlan) (string, error) {
	preferred := strings.TrimSpace(plan.Preferred)
	var busy []string
	if preferred != "" {
		free, err := addrFree(preferred)
		if err != nil {
			return "", err
		}
		if free {
			return preferred, nil
		}
		busy = append(busy, preferred)
		if !plan.AutoFallback {
			return "", &BindError{Busy: busy}
		}
	}

	candidates := lo.Uniq(lo.Compact(lo.Map(plan.Candidates, func(a string, _ int) string { return strings.TrimSpace(a) })))
	for _, addr := range lo.Without(candidates, preferred) {
		free, err := addrFree(addr)
		if err != nil {
			return "", err
		}
		if free {
			if preferred != "" {
				slog.Warn("controller bind address busy, using fallback from SHOTOVER_PORT_CANDIDATES", "preferred", preferred, "addr", addr)
			}
			return addr, nil
		}
		busy = append(busy, addr)
	}
	return "", &BindError{Busy: busy, Fallback: true}
}

// addrFree reports whether addr can be listened on right now.
func addrFree(addr string) (bool, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return false, fmt.Errorf("bind address %q: %w", addr, err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Debug("bind address unavailable", "addr", addr, "error", err)
		return false, nil
	}
	if err := ln.Close(); err != nil {
		return false, fmt.Errorf("release listener on %s: %w", addr, err)
	}
	return true, nil
}
