package uiobserver

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is the local, headless HTTP/WS collaborator named in spec §9
// ("UI is a single subscriber"): GET /auctions for a point-in-time
// snapshot, GET /ws for the live change-notification stream. No UI logic
// lives here; SnapshotFunc is supplied by the owning seller/buyer store.
type Server struct {
	router   *mux.Router
	hub      *Hub
	snapshot SnapshotFunc
	listener net.Listener
	stop     chan struct{}
}

// SnapshotFunc returns whatever the owning store wants exposed as JSON at
// GET /auctions — typically []*auction.Auction.
type SnapshotFunc func() interface{}

// NewServer builds a server bound to addr. Start listening with Start.
func NewServer(addr string, snapshot SnapshotFunc) (*Server, error) {
	return NewServerWithLogger(addr, snapshot, zap.NewNop())
}

// NewServerWithLogger is NewServer with an explicit logger, for processes
// that want the hub's connect/disconnect lines tagged with their own
// component logger instead of a no-op one.
func NewServerWithLogger(addr string, snapshot SnapshotFunc, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		snapshot: snapshot,
		listener: listener,
		stop:     make(chan struct{}),
	}
	s.router.HandleFunc("/auctions", s.handleAuctions).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
	return s, nil
}

// Start launches the hub dispatch loop and begins serving HTTP.
func (s *Server) Start() {
	go s.hub.Run(s.stop)
	go http.Serve(s.listener, s.router)
}

// Stop closes the listener and the hub loop.
func (s *Server) Stop() {
	close(s.stop)
	s.listener.Close()
}

// Addr returns the address this server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Notify forwards to the underlying Hub.
func (s *Server) Notify(auctionID int, reason string) {
	s.hub.Notify(auctionID, reason)
}

func (s *Server) handleAuctions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{id: uuid.New(), hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}
