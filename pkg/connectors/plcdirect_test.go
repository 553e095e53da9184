package connectors

import (
	"context"
	"errors"
	"net"
	"testing"
)

// ============================================================
// Tag decoding
// ============================================================

func TestDecodePLCTags(t *testing.T) {
	// Coils packed LSB-first: bits 0,1 in the first byte, bits 8..11 in the
	// second.
	coils := []byte{0b00000011, 0b00001100}
	regs := []byte{
		0x05, 0xAA, // motor_speed 1450
		0x02, 0x0B, // motor_current raw 523 -> 5.23 A
		0x00, 0x48, // temperature 72
		0x00, 0x55, // pressure 85
		0x00, 0x28, // conveyor_speed 40
		0x00, 0x03, // error_code 3
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // spare registers
	}

	tags, err := decodePLCTags(coils, regs)
	if err != nil {
		t.Fatalf("decodePLCTags failed: %v", err)
	}

	boolTags := map[string]bool{
		"motor_running":    true,
		"conveyor_running": true,
		"sensor_1":         false,
		"sensor_2":         false,
		"fault_alarm":      true,
		"e_stop":           true,
	}
	for name, want := range boolTags {
		if tags[name] != want {
			t.Errorf("Expected %s=%v, got %v", name, want, tags[name])
		}
	}

	intTags := map[string]int{
		"motor_speed":    1450,
		"temperature":    72,
		"pressure":       85,
		"conveyor_speed": 40,
		"error_code":     3,
	}
	for name, want := range intTags {
		if tags[name] != want {
			t.Errorf("Expected %s=%d, got %v", name, want, tags[name])
		}
	}

	if tags["motor_current"] != 5.23 {
		t.Errorf("Expected motor_current 5.23, got %v", tags["motor_current"])
	}
}

func TestDecodePLCTags_ShortResponses(t *testing.T) {
	fullCoils := []byte{0x00, 0x00}
	fullRegs := make([]byte, 20)

	if _, err := decodePLCTags([]byte{0x00}, fullRegs); err == nil {
		t.Error("Expected error on short coil response")
	}
	if _, err := decodePLCTags(fullCoils, make([]byte, 10)); err == nil {
		t.Error("Expected error on short register response")
	}
	if _, err := decodePLCTags(fullCoils, fullRegs); err != nil {
		t.Errorf("Expected full-size responses to decode, got %v", err)
	}
}

// ============================================================
// Connection lifecycle
// ============================================================

func TestPLC_NoHostConfigured(t *testing.T) {
	plc := NewPLC(PLCConfig{})

	if err := plc.Connect(context.Background()); err != nil {
		t.Errorf("Expected no-op Connect without host, got %v", err)
	}

	_, err := plc.ReadTags(context.Background())
	if err == nil {
		t.Fatal("Expected error reading tags without host")
	}
	if !errors.Is(err, ErrConnectorUnavailable) {
		t.Errorf("Expected connector unavailable, got %v", err)
	}

	if _, err := plc.GetLatestTags(context.Background(), "", 1); err == nil {
		t.Error("Expected GetLatestTags to surface the same error")
	}
}

func TestPLC_HealthCheckStates(t *testing.T) {
	disabled := NewPLC(PLCConfig{})
	if health := disabled.HealthCheck(context.Background()); health.Status != StatusDisabled {
		t.Errorf("Expected disabled without host, got %s", health.Status)
	}

	// Modbus TCP has no handshake, so a bare listener is enough to accept
	// the connection.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()
	addr := listener.Addr().(*net.TCPAddr)

	plc := NewPLC(PLCConfig{Host: "127.0.0.1", Port: addr.Port})
	if health := plc.HealthCheck(context.Background()); health.Status != StatusDisconnected {
		t.Errorf("Expected disconnected before Connect, got %s", health.Status)
	}

	if err := plc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	health := plc.HealthCheck(context.Background())
	if health.Status != StatusConnected {
		t.Errorf("Expected connected, got %s", health.Status)
	}
	if health.Detail["host"] != "127.0.0.1" {
		t.Errorf("Expected host in detail, got %v", health.Detail["host"])
	}

	if err := plc.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if health := plc.HealthCheck(context.Background()); health.Status != StatusDisconnected {
		t.Errorf("Expected disconnected after Disconnect, got %s", health.Status)
	}
}

func TestPLC_ConnectFailure(t *testing.T) {
	// Nothing listens on this port.
	plc := NewPLC(PLCConfig{Host: "127.0.0.1", Port: 1})

	if err := plc.Connect(context.Background()); err == nil {
		t.Error("Expected Connect to fail with no PLC listening")
	}

	_, err := plc.ReadTags(context.Background())
	if err == nil {
		t.Fatal("Expected ReadTags to fail with no PLC listening")
	}
	if !errors.Is(err, ErrConnectorUnavailable) {
		t.Errorf("Expected connector unavailable from failed reconnect, got %v", err)
	}
}
