package browser

import (
	"context"
	"sync"
)

// FakeDriver is an in-process Driver stub for worker tests: it returns a
// scripted Capture (or error) per URL without touching a real browser.
type FakeDriver struct {
	mu        sync.Mutex
	responses map[string]Capture
	errors    map[string]error
	closed    bool
	Calls     []string
}

// NewFakeDriver returns an empty FakeDriver; configure it with
// SetResponse/SetError before use.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		responses: make(map[string]Capture),
		errors:    make(map[string]error),
	}
}

// SetResponse scripts the Capture returned for a given URL.
func (f *FakeDriver) SetResponse(url string, c Capture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = c
}

// SetError scripts a navigation error returned for a given URL.
func (f *FakeDriver) SetError(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[url] = err
}

func (f *FakeDriver) Capture(ctx context.Context, url string) (Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, url)
	if err, ok := f.errors[url]; ok {
		return Capture{}, err
	}
	return f.responses[url], nil
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
