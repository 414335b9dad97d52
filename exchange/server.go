package exchange

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/model"
)

// NodeIDHeader carries the caller's self-declared identity. It is logged for
// traceability only; the payloads themselves are identity-free.
const NodeIDHeader = "X-Node-ID"

const contentTypeBinary = "application/octet-stream"

// SnapshotSource provides the current per-peer median RSSI values. The
// scanning engine satisfies this.
type SnapshotSource interface {
	Snapshot() []model.DeviceRSSI
}

// Server exposes one node's location claim and RSSI snapshot over HTTP.
type Server struct {
	announcement Announcement
	snapshots    SnapshotSource
	log          logging.Logger
}

// NewServer constructs the data-plane server for a node.
func NewServer(announcement Announcement, snapshots SnapshotSource, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{announcement: announcement, snapshots: snapshots, log: log}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Get("/location", s.handleLocation)
	r.Get("/rssi", s.handleRSSI)
	return r
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeBinary)
	w.Write(EncodeAnnouncement(s.announcement))
}

func (s *Server) handleRSSI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeBinary)
	w.Write(EncodeRSSIReport(s.snapshots.Snapshot()))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)
		reqLog.Debug(ctx, "exchange request",
			logging.String("path", r.URL.Path),
			logging.String("caller", r.Header.Get(NodeIDHeader)),
			logging.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
