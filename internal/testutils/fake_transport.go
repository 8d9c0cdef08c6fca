package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/otbeat2mqtt/internal/device"
)

// FakeTransport is a scripted device.Transport. Scan replays the scripted
// advertisements and then blocks until the context ends, matching the
// behavior of a real radio scan. Open returns whatever was scripted for the
// address.
type FakeTransport struct {
	mu             sync.Mutex
	advertisements []device.Advertisement
	scanErr        error
	opens          map[string]openScript
	scanCalls      int
	openCalls      []string
}

type openScript struct {
	conn *FakeConn
	err  error
	hang bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		opens: make(map[string]openScript),
	}
}

// ScriptAdvertisements replaces the advertisements replayed by the next scans.
func (ft *FakeTransport) ScriptAdvertisements(advs ...device.Advertisement) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.advertisements = append([]device.Advertisement(nil), advs...)
}

// ScriptScanError makes Scan fail immediately with err.
func (ft *FakeTransport) ScriptScanError(err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.scanErr = err
}

// ScriptOpen makes Open for address return conn.
func (ft *FakeTransport) ScriptOpen(address string, conn *FakeConn) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.opens[address] = openScript{conn: conn}
}

// ScriptOpenError makes Open for address fail with err.
func (ft *FakeTransport) ScriptOpenError(address string, err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.opens[address] = openScript{err: err}
}

// ScriptOpenHang makes Open for address block until its context ends.
func (ft *FakeTransport) ScriptOpenHang(address string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.opens[address] = openScript{hang: true}
}

func (ft *FakeTransport) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	ft.mu.Lock()
	ft.scanCalls++
	advs := append([]device.Advertisement(nil), ft.advertisements...)
	err := ft.scanErr
	ft.mu.Unlock()

	if err != nil {
		return err
	}

	for _, adv := range advs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler(adv)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (ft *FakeTransport) Open(ctx context.Context, address string) (device.Conn, error) {
	ft.mu.Lock()
	ft.openCalls = append(ft.openCalls, address)
	script, ok := ft.opens[address]
	ft.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no scripted connection for %q", address)
	}
	if script.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if script.err != nil {
		return nil, script.err
	}
	return script.conn, nil
}

// ScanCount returns how many times Scan was called.
func (ft *FakeTransport) ScanCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.scanCalls
}

// OpenedAddresses returns the addresses passed to Open, in call order.
func (ft *FakeTransport) OpenedAddresses() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.openCalls...)
}

// FakeConn is a scripted device.Conn. Notifications are injected with Push;
// link loss is simulated with Drop.
type FakeConn struct {
	mu       sync.Mutex
	handler  device.NotificationHandler
	subSvc   string
	subChar  string
	subErr   error
	closed   bool
	closeErr error

	done     chan struct{}
	doneOnce sync.Once
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		done: make(chan struct{}),
	}
}

// ScriptSubscribeError makes Subscribe fail with err.
func (fc *FakeConn) ScriptSubscribeError(err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.subErr = err
}

// ScriptCloseError makes Close return err after performing the close.
func (fc *FakeConn) ScriptCloseError(err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closeErr = err
}

func (fc *FakeConn) Subscribe(serviceUUID, charUUID string, handler device.NotificationHandler) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.subErr != nil {
		return fc.subErr
	}
	fc.subSvc = serviceUUID
	fc.subChar = charUUID
	fc.handler = handler
	return nil
}

// Push delivers a notification payload to the subscribed handler. Returns
// false if nothing is subscribed yet.
func (fc *FakeConn) Push(data []byte) bool {
	fc.mu.Lock()
	handler := fc.handler
	fc.mu.Unlock()

	if handler == nil {
		return false
	}
	buf := append([]byte(nil), data...)
	handler(buf)
	return true
}

// Drop simulates link loss: Done closes and Live turns false, but the
// connection is not marked closed.
func (fc *FakeConn) Drop() {
	fc.doneOnce.Do(func() { close(fc.done) })
}

func (fc *FakeConn) Live() bool {
	select {
	case <-fc.done:
		return false
	default:
		return true
	}
}

func (fc *FakeConn) Done() <-chan struct{} {
	return fc.done
}

func (fc *FakeConn) Close() error {
	fc.mu.Lock()
	fc.closed = true
	err := fc.closeErr
	fc.mu.Unlock()

	fc.doneOnce.Do(func() { close(fc.done) })
	return err
}

// Closed reports whether Close was called.
func (fc *FakeConn) Closed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.closed
}

// Subscribed returns the UUID pair passed to Subscribe, if any.
func (fc *FakeConn) Subscribed() (serviceUUID, charUUID string, ok bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.subSvc, fc.subChar, fc.handler != nil
}
