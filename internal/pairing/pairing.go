// Package pairing drives an external virtual-port pairing utility (com0com's
// setupc, or any compatible command) as a subprocess. The bridge itself never
// creates or deletes serial devices; pairing is a separate operator action.
package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kstaniek/go-com-router/internal/logging"
	"github.com/kstaniek/go-com-router/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Pairer invokes the configured pairing command. A nil Pairer or an empty
// command means pairing is disabled; Enabled reports that.
type Pairer struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

func New(command string, timeout time.Duration, logger *slog.Logger) *Pairer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Pairer{command: command, timeout: timeout, logger: logger}
}

// Enabled reports whether a pairing command is configured.
func (p *Pairer) Enabled() bool { return p != nil && p.command != "" }

// Create installs a virtual port pair (user-facing name and internal name).
func (p *Pairer) Create(userPort, internalPort string) error {
	return p.run(createArgs(userPort, internalPort)...)
}

// Remove deletes a virtual port or pair by name or index.
func (p *Pairer) Remove(port string) error {
	return p.run(removeArgs(port)...)
}

func createArgs(userPort, internalPort string) []string {
	return []string{
		"install",
		"PortName=" + userPort + ",EmuBR=yes",
		"PortName=" + internalPort + ",EmuBR=yes",
	}
}

func removeArgs(port string) []string { return []string{"remove", port} }

func (p *Pairer) run(args ...string) error {
	if !p.Enabled() {
		return fmt.Errorf("pairing disabled: no command configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, p.command, args...).CombinedOutput()
	if len(out) > 0 {
		p.logger.Debug("pairing_output", "command", p.command, "args", strings.Join(args, " "), "output", strings.TrimSpace(string(out)))
	}
	if err != nil {
		metrics.IncError(metrics.ErrPairing)
		return fmt.Errorf("pairing %s %s: %w", p.command, strings.Join(args, " "), err)
	}
	p.logger.Info("pairing_command_ok", "command", p.command, "args", strings.Join(args, " "))
	return nil
}
