// Package modbustransport maintains pooled, retrying Modbus TCP
// connections keyed by (ip, port, unitId), and performs the block reads
// (FC3) and register writes (FC6/FC16) the rest of the gateway needs.
package modbustransport

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/modbus-edge/gateway/internal/registermap"
)

const (
	DefaultConnectTimeout = 2500 * time.Millisecond
	DefaultRequestTimeout = 1500 * time.Millisecond
	DefaultIdleClose      = 60 * time.Second
	DefaultMaxRetries     = 2 // at most maxRetries+1 = 3 attempts
)

// Options configures a Transport. Zero values fall back to the package
// defaults.
type Options struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	IdleClose      time.Duration
	MaxRetries     int
}

// Transport is the process-wide pool of Modbus TCP connections.
type Transport struct {
	mu   sync.Mutex
	pool map[poolKey]*pooledConn

	dial dialFunc

	connectTimeout time.Duration
	requestTimeout time.Duration
	idleClose      time.Duration
	maxRetries     int
}

// NewTransport constructs a Transport using the real goburrow/modbus
// dialer.
func NewTransport(opts Options) *Transport {
	t := &Transport{
		pool:           make(map[poolKey]*pooledConn),
		dial:           dialTCP,
		connectTimeout: orDefault(opts.ConnectTimeout, DefaultConnectTimeout),
		requestTimeout: orDefault(opts.RequestTimeout, DefaultRequestTimeout),
		idleClose:      orDefault(opts.IdleClose, DefaultIdleClose),
		maxRetries:     opts.MaxRetries,
	}
	if opts.MaxRetries == 0 {
		t.maxRetries = DefaultMaxRetries
	}
	return t
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// ReadBlocksForDevice reads every declared block from the device in
// declared order, each under the retry policy, and returns a mapping of
// block name to exactly len*2 raw bytes. On final failure of any block it
// returns the partial results gathered so far plus the last error.
func (t *Transport) ReadBlocksForDevice(ip string, port int, unitID byte, blocks []registermap.Block) (map[string][]byte, error) {
	pc, key, err := t.getOrCreate(ip, port, unitID)
	if err != nil {
		return nil, newError("connect", err)
	}

	out := make(map[string][]byte, len(blocks))
	for _, b := range blocks {
		if b.Fn != 3 {
			panic(fmt.Sprintf("modbustransport: block %q declares fn=%d, only fn=3 (read holding registers) is supported by ReadBlocksForDevice", b.Name, b.Fn))
		}

		buf, err := t.withRetry(func() ([]byte, error) {
			pc.mu.Lock()
			defer pc.mu.Unlock()
			return pc.conn.ReadHoldingRegisters(b.Start, b.Len)
		})
		if err != nil {
			t.poison(key, pc)
			return out, newError(fmt.Sprintf("read block %q", b.Name), err)
		}
		pc.touch()
		out[b.Name] = buf
	}
	return out, nil
}

// WriteRegisters executes FC6 (single register) or FC16 (multiple
// registers) under the same retry policy as reads. Unknown function codes
// fail immediately without retrying or touching the pool.
func (t *Transport) WriteRegisters(ip string, port int, unitID byte, fc int, start uint16, values []uint16) error {
	switch fc {
	case 6:
		if len(values) != 1 {
			return fmt.Errorf("modbustransport: fc6 requires exactly one value, got %d", len(values))
		}
	case 16:
		if len(values) == 0 {
			return fmt.Errorf("modbustransport: fc16 requires at least one value")
		}
	default:
		return fmt.Errorf("modbustransport: unknown function code %d", fc)
	}

	pc, key, err := t.getOrCreate(ip, port, unitID)
	if err != nil {
		return newError("connect", err)
	}

	_, err = t.withRetry(func() ([]byte, error) {
		pc.mu.Lock()
		defer pc.mu.Unlock()
		if fc == 6 {
			return pc.conn.WriteSingleRegister(start, values[0])
		}
		payload := make([]byte, len(values)*2)
		for i, v := range values {
			binary.BigEndian.PutUint16(payload[i*2:], v)
		}
		return pc.conn.WriteMultipleRegisters(start, uint16(len(values)), payload)
	})
	if err != nil {
		t.poison(key, pc)
		return newError("write", err)
	}
	pc.touch()
	return nil
}

// withRetry runs fn up to maxRetries+1 times, with a backoff of
// 150 + attempt*200 ms between attempts.
func (t *Transport) withRetry(fn func() ([]byte, error)) ([]byte, error) {
	attempts := t.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		buf, err := fn()
		if err == nil {
			return buf, nil
		}
		lastErr = err
		if attempt < attempts-1 {
			time.Sleep(150*time.Millisecond + time.Duration(attempt)*200*time.Millisecond)
		}
	}
	return nil, lastErr
}
