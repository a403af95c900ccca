// README: End-to-end delivery tests: the scheduler streaming through real
// hubs and feeds, wired the way the entry point wires them.
package dispatch

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sirena/internal/modules/location"
	"sirena/internal/ws"
)

// recordingConn captures every frame sent to a registered client.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *recordingConn) Close() error { return nil }

// countType decodes the captured envelopes and counts those of msgType.
func (c *recordingConn) countType(t *testing.T, msgType string) int {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, raw := range c.frames {
		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func TestScheduler_DeliversThroughRealFeeds(t *testing.T) {
	log := zerolog.Nop()
	operatorHub := ws.NewHub(log)
	requesterHub := ws.NewHub(log)
	operatorDirect := ws.NewFeed(operatorHub, ws.ByIDDelivery{}, log)
	requesterFeed := ws.NewFeed(requesterHub, ws.ByIDDelivery{}, log)

	cands := &fakeCandidates{recs: []location.Record{
		{AmbulanceID: 5, Latitud: 4.71, Longitud: -74.07, TipoAmbulancia: location.VehicleBasica},
	}}
	pos := &fakePositions{rec: &location.Record{AmbulanceID: 5, Latitud: 4.71, Longitud: -74.07}}
	s := NewScheduler(operatorDirect, requesterFeed, cands, pos, 10*time.Millisecond, log)
	defer s.Shutdown()

	opConn := &recordingConn{}
	operatorHub.ConnectAs(ws.NewClient(opConn), 10)

	if !s.StartEvaluating(1, 10, location.VehicleBasica) {
		t.Fatal("StartEvaluating rejected")
	}
	waitFor(t, func() bool { return opConn.countType(t, "info_ambulancias") >= 2 },
		"operator connection never received candidate frames")

	reqConn := &recordingConn{}
	requesterHub.ConnectAs(ws.NewClient(reqConn), 20)

	if !s.StopThenStartAssigned(1, 20, 5) {
		t.Fatal("handover rejected")
	}
	waitFor(t, func() bool { return reqConn.countType(t, "ubicacion_ambulancia") >= 1 },
		"solicitante connection never received the ambulance position")
}

func TestScheduler_BroadcastStillReachesRegisteredOperators(t *testing.T) {
	// Operators register under their id for addressed candidate streams, yet
	// new-request announcements go out by broadcast; both must land on the
	// same connection.
	log := zerolog.Nop()
	operatorHub := ws.NewHub(log)
	operatorBroadcast := ws.NewFeed(operatorHub, ws.BroadcastDelivery{}, log)
	operatorDirect := ws.NewFeed(operatorHub, ws.ByIDDelivery{}, log)

	cands := &fakeCandidates{recs: []location.Record{
		{AmbulanceID: 5, Latitud: 4.71, Longitud: -74.07, TipoAmbulancia: location.VehicleBasica},
	}}
	s := NewScheduler(operatorDirect, ws.NewFeed(ws.NewHub(log), ws.ByIDDelivery{}, log), cands, &fakePositions{}, 10*time.Millisecond, log)
	defer s.Shutdown()

	opConn := &recordingConn{}
	operatorHub.ConnectAs(ws.NewClient(opConn), 10)

	operatorBroadcast.Notify("nueva_solicitud", map[string]any{"id": 1})
	if got := opConn.countType(t, "nueva_solicitud"); got != 1 {
		t.Fatalf("nueva_solicitud frames = %d, want 1", got)
	}

	s.StartEvaluating(1, 10, location.VehicleBasica)
	waitFor(t, func() bool { return opConn.countType(t, "info_ambulancias") >= 1 },
		"id-addressed stream missed the registered operator")
}

func TestScheduler_EvaluatingEndsWhenLastOperatorConnCloses(t *testing.T) {
	log := zerolog.Nop()
	operatorHub := ws.NewHub(log)
	operatorDirect := ws.NewFeed(operatorHub, ws.ByIDDelivery{}, log)

	s := NewScheduler(operatorDirect, ws.NewFeed(ws.NewHub(log), ws.ByIDDelivery{}, log),
		&fakeCandidates{}, &fakePositions{}, 10*time.Millisecond, log)
	defer s.Shutdown()

	opConn := &recordingConn{}
	client := ws.NewClient(opConn)
	operatorHub.ConnectAs(client, 10)

	s.StartEvaluating(1, 10, location.VehicleBasica)
	waitFor(t, func() bool { return opConn.countType(t, "info_ambulancias") >= 1 },
		"stream never started")

	operatorHub.Disconnect(client)
	waitFor(t, func() bool { return !s.Active(1) }, "task outlived the operator's last connection")
}
