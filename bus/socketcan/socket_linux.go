package socketcan

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Dial opens a raw CAN socket bound to iface that also receives error frames.
// The socket is non-blocking and registered with the runtime poller, so write
// deadlines apply and Close unblocks a pending read.
func Dial(iface string) (io.ReadWriteCloser, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, requireNetAdmin(fmt.Errorf("socket: %w", err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, errFilter); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt CAN_RAW_ERR_FILTER: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", iface, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), "can:"+iface), nil
}

// queueFull reports the errors a raw CAN socket returns when the interface
// transmit queue has no room.
func queueFull(err error) bool {
	return errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.EAGAIN)
}
