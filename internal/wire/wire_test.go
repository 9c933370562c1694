package wire

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/skylineware/spidercore/internal/spider"
)

func TestDecodeInboundRecognizesExit(t *testing.T) {
	t.Parallel()

	payload, err := EncodeExit(spider.ExitMessage{Id: "spider-1"})
	if err != nil {
		t.Fatalf("EncodeExit() error = %v", err)
	}

	frame := DecodeInbound(payload)
	if frame.Kind != KindExit {
		t.Fatalf("Kind = %v, want KindExit", frame.Kind)
	}
	if frame.Exit.Id != "spider-1" {
		t.Fatalf("Exit.Id = %q, want spider-1", frame.Exit.Id)
	}
}

func TestDecodeInboundRecognizesResponse(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"RequestHash":"H1","StatusCode":200,"Agent":"A7","ElapsedMilliseconds":42,"Content":"body"}`)

	frame := DecodeInbound(payload)
	if frame.Kind != KindResponse {
		t.Fatalf("Kind = %v, want KindResponse", frame.Kind)
	}
	if frame.Response.RequestHash != "H1" || frame.Response.StatusCode != 200 ||
		frame.Response.Agent != "A7" || frame.Response.ElapsedMilliseconds != 42 ||
		string(frame.Response.Content) != "body" {
		t.Fatalf("Response = %+v, unexpected", frame.Response)
	}
}

func TestDecodeInboundUnknownShape(t *testing.T) {
	t.Parallel()

	if frame := DecodeInbound([]byte(`{"foo":"bar"}`)); frame.Kind != KindUnknown {
		t.Fatalf("Kind = %v, want KindUnknown", frame.Kind)
	}
	if frame := DecodeInbound([]byte(`not json`)); frame.Kind != KindUnknown {
		t.Fatalf("Kind for invalid JSON = %v, want KindUnknown", frame.Kind)
	}
}

func TestEncodeRequestRoundTripsCoreFields(t *testing.T) {
	t.Parallel()

	req := spider.Request{
		Hash:           "H1",
		RequestUri:     "http://example.com",
		Owner:          "spider-1",
		DownloaderType: "HttpClient",
		Policy:         spider.PolicyRandom,
		RequestedTimes: 1,
		Depth:          2,
		Timestamp:      123456,
	}
	payload, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("EncodeRequest() produced an empty payload")
	}
	parsed := gjson.ParseBytes(payload)
	if parsed.Get("Hash").String() != "H1" || parsed.Get("RequestUri").String() != "http://example.com" ||
		parsed.Get("Owner").String() != "spider-1" || parsed.Get("DownloaderType").String() != "HttpClient" ||
		parsed.Get("Policy").String() != "Random" || parsed.Get("RequestedTimes").Int() != 1 ||
		parsed.Get("Depth").Int() != 2 || parsed.Get("Timestamp").Int() != 123456 {
		t.Fatalf("EncodeRequest() = %s, core fields did not round-trip", payload)
	}
}
