package device

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"valve-gateway/internal/config"
	"valve-gateway/internal/logger"
)

// ErrNoDevice is returned when discovery finds no known adapter and no manual port is configured
var ErrNoDevice = errors.New("no valve controller found")

// Port is the duplex byte stream to the controller.
// Close must unblock a pending Read.
type Port interface {
	io.ReadWriteCloser
}

// inputResetter is implemented by serial ports that can discard unread input
type inputResetter interface {
	ResetInputBuffer() error
}

// Opener opens a Port by address (e.g. /dev/ttyACM0, COM3)
type Opener interface {
	Open(address string) (Port, error)
}

// Discoverer finds the address of an attached controller
type Discoverer interface {
	Discover() (string, error)
}

// SerialOpener opens real serial ports
type SerialOpener struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// NewSerialOpener creates an opener from device settings. The read timeout
// equals the poll interval so the line pump notices shutdown promptly.
func NewSerialOpener(settings config.DeviceSettings) *SerialOpener {
	return &SerialOpener{
		BaudRate:    settings.BaudRate,
		ReadTimeout: settings.PollInterval,
	}
}

// Open opens the serial device at 8N1
func (o *SerialOpener) Open(address string) (Port, error) {
	port, err := serial.Open(address, &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", address, err)
	}

	if o.ReadTimeout > 0 {
		if err := port.SetReadTimeout(o.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", address, err)
		}
	}

	return port, nil
}

// USBDiscoverer scans USB serial adapters for known vendor/product ids
type USBDiscoverer struct {
	ids  []config.USBID
	list func() ([]*enumerator.PortDetails, error)
}

// NewUSBDiscoverer creates a discoverer for the given ids
func NewUSBDiscoverer(ids []config.USBID) *USBDiscoverer {
	return &USBDiscoverer{
		ids:  ids,
		list: enumerator.GetDetailedPortsList,
	}
}

// Discover returns the first port whose VID/PID matches a known id
func (d *USBDiscoverer) Discover() (string, error) {
	ports, err := d.list()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}

	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		for _, id := range d.ids {
			if !strings.EqualFold(p.VID, id.VID) {
				continue
			}
			if id.PID != "" && !strings.EqualFold(p.PID, id.PID) {
				continue
			}
			logger.LogInfo("🔍 Found controller candidate %s (%s:%s %s)", p.Name, p.VID, p.PID, p.Product)
			return p.Name, nil
		}
	}

	return "", ErrNoDevice
}
