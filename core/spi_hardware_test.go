package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// mockSPIDriver records every call. Transfers answer each byte with its
// complement unless respond is set.
type mockSPIDriver struct {
	calls     []string
	configs   []SPIConfig
	sent      []byte
	respond   func(tx byte) byte
	handle    int
	transfers int

	failConfigure error
	failBegin     error
	failTransfer  error
}

type mockBusHandle struct{ id int }

func (m *mockSPIDriver) ConfigureBus(config SPIConfig) (interface{}, error) {
	m.calls = append(m.calls, "configure")
	m.configs = append(m.configs, config)
	if m.failConfigure != nil {
		return nil, m.failConfigure
	}
	m.handle++
	return &mockBusHandle{id: m.handle}, nil
}

func (m *mockSPIDriver) ReleaseBus(h interface{}) error {
	m.calls = append(m.calls, "release")
	return nil
}

func (m *mockSPIDriver) BeginTransaction(h interface{}, config SPIConfig) error {
	m.calls = append(m.calls, "begin")
	return m.failBegin
}

func (m *mockSPIDriver) EndTransaction(h interface{}) error {
	m.calls = append(m.calls, "end")
	return nil
}

func (m *mockSPIDriver) Transfer(h interface{}, tx, rx []byte) error {
	m.calls = append(m.calls, "transfer")
	m.transfers++
	if m.failTransfer != nil {
		return m.failTransfer
	}
	m.sent = append(m.sent, tx...)
	for i, b := range tx {
		if m.respond != nil {
			rx[i] = m.respond(b)
		} else {
			rx[i] = ^b
		}
	}
	return nil
}

func (m *mockSPIDriver) GetBusInfo() map[SPIBusID]string {
	return map[SPIBusID]string{0: "mock"}
}

func newHardwareTestDevice(t *testing.T, config SPIConfig) (*Device, *mockSPIDriver, *mockGPIO) {
	t.Helper()
	drv := &mockSPIDriver{}
	m := newMockGPIO()
	dev := NewHardwareDevice(testCS, config, drv)
	dev.SetGPIODriver(m)
	if err := dev.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	drv.calls = nil
	m.clearLog()
	return dev, drv, m
}

func TestHardwareDefaults(t *testing.T) {
	dev, drv, _ := newHardwareTestDevice(t, SPIConfig{BusID: 1, Mode: Mode3})

	if dev.Kind() != BusHardware {
		t.Errorf("Expected hardware bus, got %v", dev.Kind())
	}
	if len(drv.configs) != 1 {
		t.Fatalf("Begin should configure the bus once, got %d", len(drv.configs))
	}
	cfg := drv.configs[0]
	if cfg.Rate != DefaultRate || cfg.BusID != 1 || cfg.Mode != Mode3 || cfg.BitOrder != MSBFirst {
		t.Errorf("Unexpected bus config %+v", cfg)
	}
	if !dev.Begun() {
		t.Error("Device should report begun")
	}
}

func TestHardwareTransferWholeBuffer(t *testing.T) {
	dev, drv, m := newHardwareTestDevice(t, DefaultSPIConfig())

	buf := []byte{0x00, 0x0F, 0xF0}
	if err := dev.Transfer(buf); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if drv.transfers != 1 {
		t.Errorf("Expected one driver transfer, got %d", drv.transfers)
	}
	if !bytes.Equal(buf, []byte{0xFF, 0xF0, 0x0F}) {
		t.Errorf("Received bytes should replace the buffer, got %x", buf)
	}
	if len(m.history[testCS]) != 0 {
		t.Error("Transfer must not touch chip select")
	}

	drv.transfers = 0
	dev.Transfer(nil)
	if drv.transfers != 0 {
		t.Error("Empty transfer should not reach the driver")
	}
}

func TestHardwareTransactionOrder(t *testing.T) {
	dev, drv, _ := newHardwareTestDevice(t, DefaultSPIConfig())

	dev.Read(make([]byte, 4), 0xFF)
	if got := strings.Join(drv.calls, ","); got != "begin,transfer,end" {
		t.Errorf("Read call order %s", got)
	}

	drv.calls = nil
	dev.Write([]byte{1, 2}, []byte{3}, false)
	if got := strings.Join(drv.calls, ","); got != "begin,transfer,transfer,transfer,end" {
		t.Errorf("Write call order %s", got)
	}

	drv.calls = nil
	dev.WriteAndRead(0x10)
	if got := strings.Join(drv.calls, ","); got != "transfer" {
		t.Errorf("WriteAndRead must skip transaction signalling, got %s", got)
	}
}

func TestHardwareWriteThenRead(t *testing.T) {
	dev, drv, _ := newHardwareTestDevice(t, DefaultSPIConfig())
	drv.respond = func(tx byte) byte { return tx + 1 }

	r := make([]byte, 2)
	dev.WriteThenRead([]byte{0x10, 0x20, 0x30}, r, 0x40)

	if !bytes.Equal(drv.sent, []byte{0x10, 0x20, 0x30, 0x40, 0x40}) {
		t.Errorf("Sent %x", drv.sent)
	}
	if !bytes.Equal(r, []byte{0x41, 0x41}) {
		t.Errorf("Read phase stored %x", r)
	}
}

func TestHardwareErrorsReleaseChipSelect(t *testing.T) {
	dev, drv, m := newHardwareTestDevice(t, DefaultSPIConfig())
	boom := errors.New("bus fault")
	drv.failTransfer = boom

	if err := dev.Write([]byte{1, 2, 3}, nil, false); !errors.Is(err, boom) {
		t.Errorf("Expected the driver error, got %v", err)
	}
	if drv.transfers != 1 {
		t.Errorf("Write should stop at the first failure, got %d transfers", drv.transfers)
	}
	if got := strings.Join(drv.calls, ","); got != "begin,transfer,end" {
		t.Errorf("Transaction should still end, got %s", got)
	}
	if !m.levels[testCS] {
		t.Error("Chip select must be released after a failure")
	}
}

func TestHardwareBeginTransactionFailure(t *testing.T) {
	dev, drv, m := newHardwareTestDevice(t, DefaultSPIConfig())
	drv.failBegin = errors.New("busy")

	if err := dev.Read(make([]byte, 1), 0xFF); err == nil {
		t.Fatal("Expected BeginTransaction error")
	}
	if drv.transfers != 0 || len(m.history[testCS]) != 0 {
		t.Error("Nothing should happen once the bus cannot be claimed")
	}
}

func TestHardwareBeginFailure(t *testing.T) {
	drv := &mockSPIDriver{failConfigure: errors.New("no such bus")}
	dev := NewHardwareDevice(testCS, DefaultSPIConfig(), drv)
	dev.SetGPIODriver(newMockGPIO())

	if err := dev.Begin(); err == nil {
		t.Fatal("Expected ConfigureBus error")
	}
	if dev.Begun() {
		t.Error("Failed Begin must not mark the device begun")
	}
}

func TestHardwareEndReleasesOnce(t *testing.T) {
	dev, drv, _ := newHardwareTestDevice(t, DefaultSPIConfig())

	dev.End()
	dev.End()
	if got := strings.Join(drv.calls, ","); got != "release" {
		t.Errorf("Expected a single release, got %s", got)
	}
}

func TestHardwareSharedDriver(t *testing.T) {
	drv := &mockSPIDriver{}
	m := newMockGPIO()
	a := NewHardwareDevice(testCS, DefaultSPIConfig(), drv)
	b := NewHardwareDevice(testSCK, SPIConfig{Mode: Mode2, Rate: 4000000}, drv)
	for _, d := range []*Device{a, b} {
		d.SetGPIODriver(m)
		d.Begin()
	}
	m.clearLog()

	a.WriteAndRead(1)
	b.WriteAndRead(2)
	if len(m.history[testCS]) != 2 || len(m.history[testSCK]) != 2 {
		t.Errorf("Each device should pulse only its own chip select: %v", m.history)
	}
	if len(drv.configs) != 2 || drv.configs[1].Rate != 4000000 {
		t.Errorf("Each device configures its own settings: %+v", drv.configs)
	}
}

func TestHardwareUsesRegisteredDriver(t *testing.T) {
	saved := spiDriver
	defer SetSPIDriver(saved)

	drv := &mockSPIDriver{}
	SetSPIDriver(drv)
	dev := NewHardwareDevice(testCS, DefaultSPIConfig(), nil)
	dev.SetGPIODriver(newMockGPIO())
	dev.Begin()
	if len(drv.configs) != 1 {
		t.Error("nil driver should fall back to the registered one")
	}
}
