package server

import (
	"context"
	"database/sql"
	"net/http"

	"skysched/scheduler"
)

type Server struct {
	DB      *sql.DB
	Mux     *http.ServeMux
	Manager *scheduler.Manager
	IDs     IdentityResolver
}

func New(ctx context.Context, db *sql.DB, ids IdentityResolver, lockingReads bool) (*Server, error) {
	s := &Server{
		DB:      db,
		Mux:     http.NewServeMux(),
		Manager: scheduler.NewManager(db, lockingReads),
		IDs:     ids,
	}

	err := s.initDatabase(ctx)
	if err != nil {
		return nil, err
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/api/save-event/", s.saveEvent)
	s.Mux.HandleFunc("/api/load-events/", s.loadEvents)
	s.Mux.HandleFunc("/api/load-series-events/", s.loadSeriesEvents)
	s.Mux.HandleFunc("/api/check-conflict/", s.checkConflict)
	s.Mux.HandleFunc("/api/delete-event/", s.deleteEvent)

	s.Mux.HandleFunc("/api/health", s.health)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
