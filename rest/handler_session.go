package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	sessions, err := s.sessions.Find(address)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error listing sessions")
		return
	}
	respondWithJSON(w, http.StatusOK, sessions)
}

// HandleResetSession clears every session of an address, the REST twin of
// the in-chat reset command.
func (s *Server) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := s.executorService.ResetSession(address); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error resetting session")
		return
	}
	respondOK(w, "reset")
}
