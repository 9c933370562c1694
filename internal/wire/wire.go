// Package wire decodes the opaque byte frames carried on the message bus
// into one of the core's known message variants (Exit | Response |
// Unknown), and encodes outbound Request frames, without committing to a
// single fixed struct shape — grounded on the tolerant-JSON pattern used
// elsewhere in the retrieved pack for loosely-typed protocol frames.
package wire

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/skylineware/spidercore/internal/spider"
)

// Kind tags which variant a decoded Frame holds.
type Kind int

// Known inbound frame variants.
const (
	KindUnknown Kind = iota
	KindExit
	KindResponse
)

// Frame is the decoded result of DecodeInbound: exactly one of Exit or
// Response is populated, per Kind.
type Frame struct {
	Kind     Kind
	Exit     spider.ExitMessage
	Response spider.Response
}

// DecodeInbound inspects payload's discriminator fields and decodes it
// into the matching known variant. Payloads that match neither shape
// decode to KindUnknown, which the consumer logs and drops.
func DecodeInbound(payload []byte) Frame {
	if !gjson.ValidBytes(payload) {
		return Frame{Kind: KindUnknown}
	}

	parsed := gjson.ParseBytes(payload)

	if idField := parsed.Get("Id"); idField.Exists() && isExitShaped(parsed) {
		return Frame{Kind: KindExit, Exit: spider.ExitMessage{Id: idField.String()}}
	}

	if hashField := parsed.Get("RequestHash"); hashField.Exists() {
		return Frame{
			Kind: KindResponse,
			Response: spider.Response{
				RequestHash:         hashField.String(),
				StatusCode:          int(parsed.Get("StatusCode").Int()),
				Agent:               parsed.Get("Agent").String(),
				ElapsedMilliseconds: parsed.Get("ElapsedMilliseconds").Int(),
				Content:             []byte(parsed.Get("Content").String()),
			},
		}
	}

	return Frame{Kind: KindUnknown}
}

// isExitShaped reports whether parsed looks like an ExitMessage rather
// than coincidentally having an "Id" field on some other payload — an
// ExitMessage frame carries only Id and nothing else the core recognizes.
func isExitShaped(parsed gjson.Result) bool {
	return !parsed.Get("RequestHash").Exists() && !parsed.Get("RequestUri").Exists()
}

// EncodeRequest serializes req for publication to an agent topic.
func EncodeRequest(req spider.Request) ([]byte, error) {
	buf := []byte("{}")
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		buf, err = sjson.SetBytes(buf, path, value)
	}

	set("Hash", req.Hash)
	set("RequestUri", req.RequestUri)
	set("Owner", req.Owner)
	set("DownloaderType", req.DownloaderType)
	set("Agent", req.Agent)
	set("Policy", string(req.Policy))
	set("Proxy", req.Proxy)
	set("Headers", req.Headers)
	set("RequestedTimes", req.RequestedTimes)
	set("Depth", req.Depth)
	set("Timestamp", req.Timestamp)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeExit serializes an ExitMessage for publication to a spider's
// control topic.
func EncodeExit(msg spider.ExitMessage) ([]byte, error) {
	return sjson.SetBytes([]byte("{}"), "Id", msg.Id)
}

// EncodeResponse serializes resp for publication to a spider's control
// topic, mirroring the shape DecodeInbound recognizes as KindResponse.
// Agents (outside this module) are the typical caller; tests use it to
// build fixtures without duplicating DecodeInbound's field names.
func EncodeResponse(resp spider.Response) ([]byte, error) {
	buf := []byte("{}")
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		buf, err = sjson.SetBytes(buf, path, value)
	}

	set("RequestHash", resp.RequestHash)
	set("StatusCode", resp.StatusCode)
	set("Agent", resp.Agent)
	set("ElapsedMilliseconds", resp.ElapsedMilliseconds)
	set("Content", string(resp.Content))
	if err != nil {
		return nil, err
	}
	return buf, nil
}
