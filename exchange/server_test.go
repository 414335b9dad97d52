package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/signalsfoundry/locproof/model"
)

type staticSnapshots []model.DeviceRSSI

func (s staticSnapshots) Snapshot() []model.DeviceRSSI { return s }

func testServer(t *testing.T, ann Announcement, snap SnapshotSource) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(ann, snap, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestLocationEndpoint(t *testing.T) {
	ann := Announcement{Address: addr(7), Latitude: 48.8566, Longitude: 2.3522}
	ts := testServer(t, ann, staticSnapshots(nil))

	c := NewClient(ts.URL, "test-node")
	got, err := c.FetchAnnouncement(context.Background())
	if err != nil {
		t.Fatalf("FetchAnnouncement error: %v", err)
	}
	if got != ann {
		t.Errorf("FetchAnnouncement = %+v, want %+v", got, ann)
	}
}

func TestRSSIEndpoint(t *testing.T) {
	snap := staticSnapshots{
		{Address: addr(1), Rssi: -61},
		{Address: addr(2), Rssi: -74},
	}
	ts := testServer(t, Announcement{Address: addr(7)}, snap)

	c := NewClient(ts.URL, "test-node")
	got, err := c.FetchRSSI(context.Background())
	if err != nil {
		t.Fatalf("FetchRSSI error: %v", err)
	}
	if len(got) != 2 || got[0] != snap[0] || got[1] != snap[1] {
		t.Errorf("FetchRSSI = %+v, want %+v", got, snap)
	}
}

func TestClientSendsNodeIDHeader(t *testing.T) {
	var seen string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(NodeIDHeader)
		w.Write(EncodeRSSIReport(nil))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "alice-node")
	if _, err := c.FetchRSSI(context.Background()); err != nil {
		t.Fatalf("FetchRSSI error: %v", err)
	}
	if seen != "alice-node" {
		t.Errorf("%s header = %q, want alice-node", NodeIDHeader, seen)
	}
}

func TestClientRejectsNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "test-node")
	if _, err := c.FetchAnnouncement(context.Background()); err == nil {
		t.Errorf("FetchAnnouncement accepted a 503 response")
	}
}
