// Package browser is Talemon's headless-browser collaborator (spec §6):
// persistent profile directory, pre-installed extensions, stealth
// measures, and MHTML/screenshot export via the browser's debugging
// protocol. The component design treats the browser driver as an
// external interface; this package is the concrete binding used by the
// worker.
package browser

import "context"

// Capture is the outcome of driving the browser to one URL: the raw
// response bytes, the rendered DOM, and the archival artifacts the
// worker uploads to the Object Store on a changed-content decision
// (spec §4.3 steps 2 and 5B).
type Capture struct {
	HTTPStatus int
	RawHTML    []byte // the response body as received, before any rendering
	RenderedDOM []byte // document.documentElement.outerHTML after load
	MHTML      []byte // single-file web archive
	Screenshot []byte // full-page PNG
}

// Driver is the capability interface the worker needs from a browser
// collaborator (spec §6): navigate, observe the final HTTP status,
// recover the raw and rendered DOM, and export MHTML/screenshot. A
// single Driver instance may be shared across many sequential captures;
// it is not expected to be safe for concurrent captures on the same
// instance.
type Driver interface {
	// Capture navigates to url with the given timeout and returns
	// everything the worker's capture protocol needs. Capture never
	// returns (Capture{}, nil); on navigation failure it returns a
	// non-nil error, and on HTTP error status it still returns a
	// populated Capture (HTTPStatus set, RenderedDOM/MHTML/Screenshot
	// possibly empty) so the worker's HTTP gate can make its decision.
	Capture(ctx context.Context, url string) (Capture, error)
	// Close releases any resources (browser process, tabs) held by the
	// driver.
	Close() error
}
