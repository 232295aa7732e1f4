// Package httpd serves the recording catalog over a small read-only JSON API.
// It never touches engine targets.
package httpd

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qvisor/capstream/internal/catalog"
)

type Server struct {
	catalog *catalog.Catalog
	router  *mux.Router
}

func NewServer(c *catalog.Catalog) *Server {
	s := &Server{catalog: c, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/recordings", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/recordings/{id}", s.handleGet).Methods(http.MethodGet)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	log.WithField("addr", addr).Info("serving recording catalog")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	recs, err := s.catalog.List()
	if err != nil {
		log.WithError(err).Error("can't list recordings")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.catalog.Get(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Cause(err) == catalog.ErrNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
