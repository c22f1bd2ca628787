package core

// hardwareBus delegates transfers to a platform SPIDriver
type hardwareBus struct {
	driver SPIDriver
	cfg    SPIConfig
	handle interface{} // From ConfigureBus, nil until begin
}

func (h *hardwareBus) kind() BusKind { return BusHardware }
func (h *hardwareBus) config() SPIConfig { return h.cfg }

func (h *hardwareBus) begin() error {
	handle, err := h.driver.ConfigureBus(h.cfg)
	if err != nil {
		return err
	}
	h.handle = handle
	return nil
}

func (h *hardwareBus) end() error {
	if h.handle == nil {
		return nil
	}
	err := h.driver.ReleaseBus(h.handle)
	h.handle = nil
	return err
}

func (h *hardwareBus) beginTransaction() error {
	return h.driver.BeginTransaction(h.handle, h.cfg)
}

func (h *hardwareBus) endTransaction() error {
	return h.driver.EndTransaction(h.handle)
}

// transfer hands the whole buffer to the driver in one call. Chunking is the
// driver's business.
func (h *hardwareBus) transfer(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return h.driver.Transfer(h.handle, buf, buf)
}
