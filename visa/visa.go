package visa

import (
	"fmt"
	"sync"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

// Instrument is the capability handle for one addressed device.
//
// A handle is owned by exactly one caller at a time; implementations are not
// required to be safe for concurrent use.
type Instrument interface {
	// Write sends one command to the device.
	Write(cmd string) error
	// Read reads one response from the device, terminated per the transport's
	// framing rules.
	Read() ([]byte, error)
	// Query performs Write followed by Read.
	Query(cmd string) ([]byte, error)
	// Clear sends a device clear.
	Clear() error
	// Trigger sends a group-execute-trigger to the device.
	Trigger() error
	// ReadStatusByte serial-polls the device and returns its status byte.
	ReadStatusByte() (byte, error)
	// Close releases the handle. Further calls fail with ErrInstrumentClosed.
	Close() error
}

// Backend opens Instrument handles for resource names of one interface kind.
type Backend interface {
	Open(name ResourceName) (Instrument, error)
}

// ResourceManager routes resource names to registered backends and tracks the
// handles it has opened so they can be released together at shutdown.
//
// Construct one manager at startup, register backends on it, and pass the
// manager by reference to each component that opens instruments.
type ResourceManager struct {
	mu       sync.Mutex
	backends map[string]Backend
	open     map[Instrument]struct{}
	closed   bool
	logger   logger.Logger
}

// NewResourceManager creates an empty ResourceManager.
func NewResourceManager() *ResourceManager {
	return &ResourceManager{
		backends: make(map[string]Backend),
		open:     make(map[Instrument]struct{}),
		logger:   logger.GetLogger(),
	}
}

// SetLogger replaces the manager's logger.
func (rm *ResourceManager) SetLogger(l logger.Logger) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.logger = l
}

// Register binds a backend to an interface kind (InterfaceGPIB, InterfaceASRL).
// Registering the same kind twice replaces the previous backend.
func (rm *ResourceManager) Register(iface string, backend Backend) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.backends[iface] = backend
}

// Open parses name and opens an Instrument handle through the backend
// registered for its interface kind.
func (rm *ResourceManager) Open(name string) (Instrument, error) {
	res, err := ParseResourceName(name)
	if err != nil {
		return nil, err
	}

	return rm.OpenResource(res)
}

// OpenResource opens an Instrument handle for an already parsed resource name.
func (rm *ResourceManager) OpenResource(res ResourceName) (Instrument, error) {
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return nil, fmt.Errorf("visa: %w", ErrManagerClosed)
	}
	backend, ok := rm.backends[res.Interface]
	rm.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("visa: %w: %s", ErrUnknownInterface, res.Interface)
	}

	inst, err := backend.Open(res)
	if err != nil {
		return nil, fmt.Errorf("visa: open %s: %w", res.String(), err)
	}

	rm.mu.Lock()
	rm.open[inst] = struct{}{}
	rm.mu.Unlock()

	rm.logger.Debug("visa: resource opened", "resource", res.String())

	return &managedInstrument{Instrument: inst, rm: rm}, nil
}

// Close releases every handle the manager still tracks and marks the manager
// closed. Open errors on individual handles are logged, not returned.
func (rm *ResourceManager) Close() error {
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return nil
	}
	rm.closed = true
	handles := make([]Instrument, 0, len(rm.open))
	for inst := range rm.open {
		handles = append(handles, inst)
	}
	rm.open = make(map[Instrument]struct{})
	rm.mu.Unlock()

	for _, inst := range handles {
		if err := inst.Close(); err != nil {
			rm.logger.Warn("visa: close instrument failed", "error", err)
		}
	}

	return nil
}

func (rm *ResourceManager) release(inst Instrument) {
	rm.mu.Lock()
	delete(rm.open, inst)
	rm.mu.Unlock()
}

// managedInstrument untracks the underlying handle from its manager on Close.
type managedInstrument struct {
	Instrument
	rm   *ResourceManager
	once sync.Once
}

func (m *managedInstrument) Close() error {
	var err error
	m.once.Do(func() {
		m.rm.release(m.Instrument)
		err = m.Instrument.Close()
	})

	return err
}
