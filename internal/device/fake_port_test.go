package device

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"valve-gateway/internal/config"
	"valve-gateway/internal/models"
)

// fakePort plays the controller: writes are recorded and answered from a script
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written []string
	script  map[string][]string
	writeMu sync.Mutex

	closed atomic.Bool
}

func newFakePort(script map[string][]string) *fakePort {
	r, w := io.Pipe()
	if script == nil {
		script = map[string][]string{}
	}
	return &fakePort{r: r, w: w, script: script}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, errors.New("port closed")
	}
	cmd := strings.TrimSpace(string(b))

	p.mu.Lock()
	p.written = append(p.written, cmd)
	reply := p.script[cmd]
	p.mu.Unlock()

	if len(reply) > 0 {
		go func() {
			for _, line := range reply {
				p.emit(line)
			}
		}()
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed.Store(true)
	_ = p.r.Close()
	return p.w.Close()
}

// emit sends one line from the controller side
func (p *fakePort) emit(line string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, _ = p.w.Write([]byte(line + "\r\n"))
}

// hangUp simulates the cable being pulled
func (p *fakePort) hangUp() {
	_ = p.w.CloseWithError(io.ErrUnexpectedEOF)
}

func (p *fakePort) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// fakeOpener hands out prepared ports in order
type fakeOpener struct {
	mu    sync.Mutex
	ports []*fakePort
	opens []string
	err   error
}

func (o *fakeOpener) Open(address string) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens = append(o.opens, address)
	if o.err != nil {
		return nil, o.err
	}
	if len(o.ports) == 0 {
		return nil, errors.New("no such device")
	}
	p := o.ports[0]
	o.ports = o.ports[1:]
	return p, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opens)
}

type fakeDiscoverer struct {
	address string
	err     error
}

func (d fakeDiscoverer) Discover() (string, error) { return d.address, d.err }

func testSettings() config.DeviceSettings {
	return config.DeviceSettings{
		Port:              "/dev/ttyTEST0",
		BaudRate:          115200,
		ReconnectInterval: 20 * time.Millisecond,
		CommandTimeout:    300 * time.Millisecond,
		HandshakeTimeout:  200 * time.Millisecond,
		InitTimeout:       100 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		StopTimeout:       time.Second,
	}
}

func withInit(s config.DeviceSettings, cmds ...models.CommandName) config.DeviceSettings {
	s.InitCommands = cmds
	return s
}
