package socketcan

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

// Link controls the network interface behind a CAN socket.
type Link interface {
	// Configure sets the bitrate. The link must be down.
	Configure(bitrate int) error
	Up() error
	Down() error
	// Restart asks the controller to leave bus-off.
	Restart() error
}

// IPLink drives an interface through iproute2. Requires CAP_NET_ADMIN.
type IPLink struct {
	Name string
	// Run executes a command and returns its combined output. Defaults to os/exec.
	Run func(name string, args ...string) ([]byte, error)
}

func (l IPLink) Configure(bitrate int) error {
	// restart-ms 0 disables automatic recovery, bus-off is handled by the node.
	return l.ip("link", "set", "dev", l.Name, "type", "can",
		"bitrate", strconv.Itoa(bitrate), "restart-ms", "0")
}

func (l IPLink) Up() error {
	return l.ip("link", "set", "dev", l.Name, "up")
}

func (l IPLink) Down() error {
	return l.ip("link", "set", "dev", l.Name, "down")
}

func (l IPLink) Restart() error {
	return l.ip("link", "set", "dev", l.Name, "type", "can", "restart")
}

func (l IPLink) ip(args ...string) error {
	run := l.Run
	if run == nil {
		run = func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		}
	}
	out, err := run("ip", args...)
	if err != nil {
		return requireNetAdmin(fmt.Errorf("ip %v failed: %w; output: %s", args, err, out))
	}
	return nil
}

func requireNetAdmin(err error) error {
	if errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("operation requires CAP_NET_ADMIN (or root): %w", err)
	}
	return err
}
