package modbustransport

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// deviceConn is the narrow surface the pool needs from a Modbus TCP
// connection. It exists so tests can substitute a fake without standing up
// a real socket.
type deviceConn interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, values []byte) ([]byte, error)
	Close() error
}

// dialFunc opens one Modbus TCP connection to a device.
type dialFunc func(ip string, port int, unitID byte, connectTimeout, requestTimeout time.Duration) (deviceConn, error)

type tcpConn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func (c *tcpConn) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadHoldingRegisters(address, quantity)
}

func (c *tcpConn) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return c.client.WriteSingleRegister(address, value)
}

func (c *tcpConn) WriteMultipleRegisters(address, quantity uint16, values []byte) ([]byte, error) {
	return c.client.WriteMultipleRegisters(address, quantity, values)
}

func (c *tcpConn) Close() error {
	return c.handler.Close()
}

// dialTCP opens a real Modbus TCP connection via goburrow/modbus. Connect
// is bounded by connectTimeout independently of the handler's own
// Timeout field, which governs per-request deadlines once connected.
func dialTCP(ip string, port int, unitID byte, connectTimeout, requestTimeout time.Duration) (deviceConn, error) {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", ip, port))
	handler.Timeout = requestTimeout
	handler.SlaveId = unitID

	done := make(chan error, 1)
	go func() { done <- handler.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-time.After(connectTimeout):
		return nil, fmt.Errorf("connect timeout after %s", connectTimeout)
	}

	return &tcpConn{handler: handler, client: modbus.NewClient(handler)}, nil
}
