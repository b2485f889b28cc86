package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit/flowkit/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contacts.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error listing contacts")
		return
	}
	respondWithJSON(w, http.StatusOK, contacts)
}

func (s *Server) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	contact, err := s.contacts.Get(r.Context(), address)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error getting contact")
		return
	}
	if contact == nil {
		respondWithError(w, http.StatusNotFound, "contact not found")
		return
	}
	respondWithJSON(w, http.StatusOK, contact)
}

// HandleAddTag records a tag and runs tag_added trigger matching for the
// contact.
func (s *Server) HandleAddTag(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tag) == 0 {
		respondWithError(w, http.StatusBadRequest, "request needs tag")
		return
	}
	defer r.Body.Close()
	if err := s.executorService.HandleTagAdded(r.Context(), address, req.Tag); err != nil {
		logger.Error("error adding tag", zap.String("address", address), zap.String("tag", req.Tag), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error adding tag")
		return
	}
	respondOK(w, "tagged")
}

func (s *Server) HandleRemoveTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.contacts.RemoveTag(r.Context(), vars["address"], vars["tag"]); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error removing tag")
		return
	}
	respondOK(w, "untagged")
}
