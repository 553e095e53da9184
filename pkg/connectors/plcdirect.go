package connectors

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Defaults for the direct-PLC Modbus connection.
const (
	DefaultPLCPort    = 502
	DefaultPLCSlaveID = 1
	DefaultPLCTimeout = 5 * time.Second
)

// Modbus layout of the line PLC: 16 coils starting at 0 and 10 holding
// registers starting at 0.
const (
	plcCoilCount     = 16
	plcRegisterCount = 10
)

// PLCConfig configures the direct Modbus TCP connection.
type PLCConfig struct {
	// Host is the PLC address. Empty disables the connector.
	Host string

	// Port is the Modbus TCP port (default 502).
	Port int

	// SlaveID is the Modbus unit identifier (default 1).
	SlaveID byte

	// Timeout bounds each Modbus transaction (default 5s).
	Timeout time.Duration
}

// PLC reads tag values straight off the line PLC over Modbus TCP.
//
// The connector is read-only: it never issues a Modbus write, so a
// misrouted message can never actuate anything.
type PLC struct {
	cfg PLCConfig

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewPLC creates a direct-PLC connector. Zero config fields fall back to the
// package defaults.
func NewPLC(cfg PLCConfig) *PLC {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPLCPort
	}
	if cfg.SlaveID == 0 {
		cfg.SlaveID = DefaultPLCSlaveID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPLCTimeout
	}
	return &PLC{cfg: cfg}
}

// Name returns "plc".
func (p *PLC) Name() string {
	return "plc"
}

// Connect opens the Modbus TCP connection. A connector without a host is
// disabled and connects as a no-op.
func (p *PLC) Connect(ctx context.Context) error {
	if p.cfg.Host == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *PLC) connectLocked() error {
	handler := modbus.NewTCPClientHandler(net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port)))
	handler.Timeout = p.cfg.Timeout
	handler.SlaveId = p.cfg.SlaveID

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("modbus connect to %s failed: %w", p.cfg.Host, err)
	}

	p.handler = handler
	p.client = modbus.NewClient(handler)
	return nil
}

// Disconnect closes the Modbus TCP connection.
func (p *PLC) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.handler != nil {
		err = p.handler.Close()
	}
	p.handler = nil
	p.client = nil
	return err
}

// ReadTags reads the full coil and register block and returns the decoded
// tag map.
func (p *PLC) ReadTags(ctx context.Context) (map[string]any, error) {
	if p.cfg.Host == "" {
		return nil, &ConnectorUnavailableError{Connector: "plc", Reason: "no host configured"}
	}

	p.mu.Lock()
	if p.client == nil {
		if err := p.connectLocked(); err != nil {
			p.mu.Unlock()
			return nil, &ConnectorUnavailableError{Connector: "plc", Reason: "reconnect failed", Cause: err}
		}
	}
	client := p.client
	p.mu.Unlock()

	coils, err := client.ReadCoils(0, plcCoilCount)
	if err != nil {
		return nil, fmt.Errorf("read coils failed: %w", err)
	}
	regs, err := client.ReadHoldingRegisters(0, plcRegisterCount)
	if err != nil {
		return nil, fmt.Errorf("read holding registers failed: %w", err)
	}

	return decodePLCTags(coils, regs)
}

// GetLatestTags adapts ReadTags to the TagSource contract. The direct
// connection has exactly one node and one current snapshot, so nodeID and
// limit are ignored.
func (p *PLC) GetLatestTags(ctx context.Context, nodeID string, limit int) ([]map[string]any, error) {
	tags, err := p.ReadTags(ctx)
	if err != nil {
		return nil, err
	}
	return []map[string]any{tags}, nil
}

// HealthCheck reports disabled (no host), disconnected, or connected. It
// never touches the wire.
func (p *PLC) HealthCheck(ctx context.Context) Health {
	if p.cfg.Host == "" {
		return Health{Status: StatusDisabled}
	}

	p.mu.Lock()
	connected := p.client != nil
	p.mu.Unlock()

	if !connected {
		return Health{Status: StatusDisconnected, Detail: map[string]any{"host": p.cfg.Host}}
	}
	return Health{Status: StatusConnected, Detail: map[string]any{"host": p.cfg.Host, "port": p.cfg.Port}}
}

// decodePLCTags converts the raw Modbus payloads into the named tag map.
// Coils arrive packed LSB-first; registers are big-endian 16-bit words.
func decodePLCTags(coils, regs []byte) (map[string]any, error) {
	if len(coils) < (plcCoilCount+7)/8 {
		return nil, fmt.Errorf("short coil response: %d bytes", len(coils))
	}
	if len(regs) < plcRegisterCount*2 {
		return nil, fmt.Errorf("short register response: %d bytes", len(regs))
	}

	return map[string]any{
		"motor_running":    coilBit(coils, 0),
		"conveyor_running": coilBit(coils, 1),
		"sensor_1":         coilBit(coils, 8),
		"sensor_2":         coilBit(coils, 9),
		"fault_alarm":      coilBit(coils, 10),
		"e_stop":           coilBit(coils, 11),
		"motor_speed":      int(regAt(regs, 0)),
		"motor_current":    float64(regAt(regs, 1)) / 100.0,
		"temperature":      int(regAt(regs, 2)),
		"pressure":         int(regAt(regs, 3)),
		"conveyor_speed":   int(regAt(regs, 4)),
		"error_code":       int(regAt(regs, 5)),
	}, nil
}

func coilBit(results []byte, i int) bool {
	return results[i/8]>>(i%8)&1 == 1
}

func regAt(results []byte, i int) uint16 {
	return binary.BigEndian.Uint16(results[2*i:])
}
