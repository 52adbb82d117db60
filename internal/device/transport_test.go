package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"valve-gateway/internal/config"
	"valve-gateway/internal/models"
	"valve-gateway/internal/recovery"
)

func TestUSBDiscovererMatchesKnownIDs(t *testing.T) {
	d := NewUSBDiscoverer([]config.USBID{
		{VID: "2341", PID: "0043"},
		{VID: "1a86"},
	})
	d.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0", IsUSB: false},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1A86", PID: "7523"},
		}, nil
	}

	name, err := d.Discover()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", name)
}

func TestUSBDiscovererNoMatch(t *testing.T) {
	d := NewUSBDiscoverer([]config.USBID{{VID: "2341", PID: "0043"}})
	d.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0001"},
		}, nil
	}

	_, err := d.Discover()
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestUSBDiscovererEnumerationError(t *testing.T) {
	d := NewUSBDiscoverer(nil)
	d.list = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("udev unavailable")
	}

	_, err := d.Discover()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDevice)
}

func TestBreakerLinkOpensAfterTimeouts(t *testing.T) {
	link, port := connectedLink(t, map[string][]string{})
	b := NewBreakerLink(link, 2, time.Minute, 1)

	for i := 0; i < 2; i++ {
		_, err := b.SendCommand(context.Background(), models.CmdStatus, 20*time.Millisecond)
		require.Error(t, err)
	}
	assert.Equal(t, recovery.StateOpen, b.BreakerState())

	_, err := b.SendCommand(context.Background(), models.CmdStatus, 20*time.Millisecond)
	assert.ErrorIs(t, err, recovery.ErrCircuitOpen)
	// The third command never reached the device
	assert.Equal(t, []string{"PING", "STATUS", "STATUS"}, port.commands())
}

func TestBreakerLinkIgnoresConnectivityErrors(t *testing.T) {
	link := NewLink(testSettings(), &fakeOpener{}, nil)
	b := NewBreakerLink(link, 1, time.Minute, 1)

	for i := 0; i < 3; i++ {
		_, err := b.SendCommand(context.Background(), models.CmdOpen, 0)
		require.Error(t, err)
	}
	assert.Equal(t, recovery.StateClosed, b.BreakerState())
	assert.False(t, b.IsConnected())
}
