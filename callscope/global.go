package callscope

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrAlreadyInitialized is returned by Init once the default engine exists,
	// whether Init set it or Default created it lazily.
	ErrAlreadyInitialized = errors.New("callscope: default engine already initialized")
	// ErrNilEngine is returned by Init when given a nil engine.
	ErrNilEngine = errors.New("callscope: nil engine")
)

var defaultEngine atomic.Pointer[Engine]

// Default returns the process-wide engine, creating one with NewEngine() on
// first use if Init was not called.
func Default() *Engine {
	if e := defaultEngine.Load(); e != nil {
		return e
	}
	defaultEngine.CompareAndSwap(nil, NewEngine())
	return defaultEngine.Load()
}

// Init installs e as the process-wide engine. Call it at startup, before
// anything uses Default. The first engine wins; later calls return
// ErrAlreadyInitialized and leave it in place.
func Init(e *Engine) error {
	if e == nil {
		return ErrNilEngine
	}
	if !defaultEngine.CompareAndSwap(nil, e) {
		return ErrAlreadyInitialized
	}
	return nil
}
