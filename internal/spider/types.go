// Package spider defines the data model shared by every core component:
// the request/response envelope dispatched over the message bus and the
// control message that tells a spider to shut down.
package spider

import "strings"

// Policy selects how a follow-up request chooses its destination agent.
type Policy string

const (
	// PolicyChained pins a follow-up to the agent that served its parent.
	PolicyChained Policy = "Chained"
	// PolicyRandom rebalances a follow-up across agents of the same
	// downloader type.
	PolicyRandom Policy = "Random"
)

// DefaultDownloaderType is used whenever a Request does not name one.
const DefaultDownloaderType = "HttpClient"

// RedialRegExpHeader is the header key required on any ADSL-routed request.
const RedialRegExpHeader = "RedialRegExp"

// Request is the unit of work admitted into the scheduler, dispatched to an
// agent, and re-admitted on retry or timeout.
type Request struct {
	// Hash is the stable fingerprint used to correlate this request with
	// its response and to detect in-flight duplicates. The core treats it
	// as opaque; callers or the scheduler supply it.
	Hash string
	// RequestUri is the URL (or other locator) the agent should fetch.
	RequestUri string
	// Owner is the spider Id, stamped on admission.
	Owner string

	// DownloaderType routes dispatch when Agent is blank; empty means
	// DefaultDownloaderType.
	DownloaderType string
	// Agent is set by the agent that served a previous hop; blank on
	// first dispatch.
	Agent string
	// Policy governs follow-up routing when Agent is non-blank.
	Policy Policy
	// Proxy is the leased proxy URI, set by the publisher when UseProxy
	// is enabled.
	Proxy string

	// Headers carries arbitrary key/value pairs; RedialRegExpHeader is
	// required when DownloaderType contains "ADSL".
	Headers map[string]string

	// RequestedTimes counts admission attempts; incremented exactly once
	// per call into admission, before the retry-budget check.
	RequestedTimes int
	// Depth is the hop count from the seed requests.
	Depth int
	// Timestamp is the unix-ms stamp recorded at dispatch.
	Timestamp int64
}

// IsADSL reports whether DownloaderType names the ADSL downloader family.
func (r Request) IsADSL() bool {
	return strings.Contains(r.DownloaderType, "ADSL")
}

// EffectiveDownloaderType returns DownloaderType, defaulting when blank.
func (r Request) EffectiveDownloaderType() string {
	if r.DownloaderType == "" {
		return DefaultDownloaderType
	}
	return r.DownloaderType
}

// Response is the agent's reply to a dispatched Request.
type Response struct {
	// RequestHash matches an in-flight Request's Hash.
	RequestHash string
	// StatusCode is the agent's reported HTTP status; 200 is success.
	StatusCode int
	// Agent identifies the agent that produced the response.
	Agent string
	// ElapsedMilliseconds is the agent-reported fetch duration.
	ElapsedMilliseconds int64
	// Content is the opaque response body.
	Content []byte
}

// Succeeded reports whether the response represents a successful fetch.
func (r Response) Succeeded() bool {
	return r.StatusCode == 200
}

// ExitMessage is consumed on a spider's control topic to request a
// graceful shutdown. Ids that do not match the listening spider are
// ignored, since many spiders may share one bus.
type ExitMessage struct {
	Id string
}
