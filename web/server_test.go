package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"go-conductor/bus"
	"go-conductor/node"
	"go-conductor/sched"
	"go-conductor/sequencer"
	"go-conductor/tap"
	"go-conductor/tone"
)

type nullSink struct{}

func (nullSink) SetLevel(uint8) {}

type rig struct {
	k      *sched.Kernel
	hub    *bus.Hub
	node   *node.Node
	probe  *bus.Port
	router *gin.Engine
	heard  []bus.Message
}

func newRig(role node.Role) *rig {
	r := &rig{
		k:   sched.NewKernel(sched.NewManualClock(time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC))),
		hub: bus.NewHub(),
	}
	engine := tone.New(r.k, nullSink{})
	seq := sequencer.New(r.k, engine, nil)
	r.node = node.New(r.k, engine, seq, r.hub.Attach(), role)
	r.probe = r.hub.Attach()
	r.probe.SetHandler(func(m bus.Message) { r.heard = append(r.heard, m) })
	est := tap.New(r.k, r.node)
	r.router = NewServer(r.node, seq, est).Router()
	return r
}

func (r *rig) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) node.Result {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res node.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

func TestCommands(t *testing.T) {
	tests := []struct {
		method, path, body string
		ok                 bool
		message            string
	}{
		{"POST", "/api/volume/up", "", true, "Volume: 6"},
		{"POST", "/api/volume/down", "", true, "Volume: 5"},
		{"POST", "/api/mute", "", true, "Music is muted."},
		{"POST", "/api/tempo", `{"bpm": 150}`, true, "Changed Tempo: 150"},
		{"POST", "/api/tempo", `{"bpm": 250}`, false, "Tempo out of range"},
		{"POST", "/api/key", `{"key": 0}`, true, "Changed Key: 0"},
		{"POST", "/api/key", `{"key": -6}`, false, "Key out of range"},
		{"POST", "/api/play", "", true, "Music is now playing from the beginning."},
		{"POST", "/api/play", "", false, "Music is already playing."},
		{"POST", "/api/stop", "", true, "Music is now stopped."},
		{"POST", "/api/melody", `{"name": "twinkle"}`, true, "Melody: twinkle"},
		{"POST", "/api/role", `{"role": "musician"}`, true, "Connected as musician!"},
		{"POST", "/api/volume/up", "", false, "Not connected as conductor, ChangeVolume not applied."},
	}

	r := newRig(node.Conductor)
	for _, tt := range tests {
		res := decodeResult(t, r.do(tt.method, tt.path, tt.body))
		if res.OK != tt.ok || res.Message != tt.message {
			t.Fatalf("%s %s %s = %+v, want %v %q", tt.method, tt.path, tt.body, res, tt.ok, tt.message)
		}
	}
}

func TestCommandsReachTheBus(t *testing.T) {
	r := newRig(node.Conductor)
	r.do("POST", "/api/tempo", `{"bpm": 90}`)
	r.hub.Flush()
	if len(r.heard) != 1 || r.heard[0].String() != "ChangeTempo(90)" {
		t.Fatalf("bus heard %v", r.heard)
	}
}

func TestBadRequests(t *testing.T) {
	r := newRig(node.Conductor)
	for _, tc := range []struct{ path, body string }{
		{"/api/tempo", `{}`},
		{"/api/tempo", `not json`},
		{"/api/key", `{"key": "x"}`},
		{"/api/role", `{"role": "soloist"}`},
		{"/api/melody", `{}`},
		{"/api/digits", `{}`},
	} {
		if w := r.do("POST", tc.path, tc.body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status %d, want 400", tc.path, tc.body, w.Code)
		}
	}
}

func TestDigitEntry(t *testing.T) {
	r := newRig(node.Conductor)

	w := r.do("POST", "/api/digits", `{"input": "13a2"}`)
	var resp struct {
		Result node.Result `json:"result"`
		Digits string      `json:"digits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.OK || resp.Digits != "13" {
		t.Fatalf("entry stopped at %+v, digits %q", resp.Result, resp.Digits)
	}

	res := decodeResult(t, r.do("POST", "/api/commit/key", ""))
	if res.OK || res.Message != "Key out of range" {
		t.Fatalf("commit key 13 = %+v", res)
	}

	r.do("POST", "/api/digits", `{"input": "99"}`)
	if w := r.do("DELETE", "/api/digits", ""); w.Code != http.StatusNoContent {
		t.Fatalf("clear status %d", w.Code)
	}
	res = decodeResult(t, r.do("POST", "/api/commit/tempo", ""))
	if res.Message != "No value entered" {
		t.Fatalf("commit after clear = %+v", res)
	}
}

func TestStatusAndHistory(t *testing.T) {
	r := newRig(node.Conductor)
	r.do("POST", "/api/volume/up", "")

	w := r.do("GET", "/api/status", "")
	var st struct {
		Role string `json:"role"`
		Tone struct {
			Volume int
		} `json:"tone"`
		Sequencer sequencer.State `json:"sequencer"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Role != "conductor" || st.Tone.Volume != 6 || st.Sequencer.Tempo != 120 {
		t.Fatalf("status = %+v", st)
	}

	w = r.do("GET", "/api/history", "")
	var h struct {
		Lines []string `json:"lines"`
	}
	json.Unmarshal(w.Body.Bytes(), &h)
	if len(h.Lines) != 1 || h.Lines[0] != "Volume: 6" {
		t.Fatalf("history = %v", h.Lines)
	}
}

func TestTapEndpoints(t *testing.T) {
	r := newRig(node.Musician)
	w := r.do("POST", "/api/tap/press", "")
	if !strings.Contains(w.Body.String(), `"outcome":"down"`) {
		t.Fatalf("press: %s", w.Body.String())
	}
	r.k.Advance(150 * time.Millisecond)
	w = r.do("POST", "/api/tap/release", "")
	if !strings.Contains(w.Body.String(), `"state":"released"`) {
		t.Fatalf("release: %s", w.Body.String())
	}
}

func TestPreflight(t *testing.T) {
	r := newRig(node.Conductor)
	w := r.do("OPTIONS", "/api/play", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", w.Code, w.Header())
	}
}
