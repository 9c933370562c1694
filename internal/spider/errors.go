package spider

import "errors"

// Error kinds from the core's error taxonomy. Start-time errors abort
// startup; runtime errors in user code are contained and converted to
// re-admission or lifecycle stop as documented on each call site.
var (
	// ErrInvalidRequest marks an ADSL request missing RedialRegExpHeader.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidID marks a spider Id that is blank or exceeds 36 characters.
	ErrInvalidID = errors.New("invalid spider id")
	// ErrStorageMisconfigured marks a default storage sink that could not
	// be resolved from configuration.
	ErrStorageMisconfigured = errors.New("storage misconfigured")
	// ErrUnsupportedPolicy marks a request carrying an unrecognized Policy.
	ErrUnsupportedPolicy = errors.New("unsupported policy")
	// ErrStageInitFailed marks a data-flow stage whose Init returned an error.
	ErrStageInitFailed = errors.New("data-flow stage init failed")
	// ErrStageRuntimeFailed marks a data-flow stage whose Handle returned an
	// error while processing a response; the originating request is
	// re-admitted rather than treated as fatal.
	ErrStageRuntimeFailed = errors.New("data-flow stage runtime failed")
	// ErrNoProxyAvailable marks a ProxyPool lease failure while UseProxy is set.
	ErrNoProxyAvailable = errors.New("no proxy available")
)
