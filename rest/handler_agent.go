package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) HandleSaveAgent(w http.ResponseWriter, r *http.Request) {
	var def model.AgentDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed agent definition")
		return
	}
	defer r.Body.Close()
	if len(def.Id) == 0 {
		def.Id = uuid.New().String()
	}
	if err := s.metadataService.SaveAgent(def); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error saving agent")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"id": def.Id})
}

func (s *Server) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := s.metadataService.GetAgent(id)
	if err != nil {
		if _, ok := err.(persistence.AgentNotFoundError); ok {
			respondWithError(w, http.StatusNotFound, "agent not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "error getting agent")
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (s *Server) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteAgent(id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error deleting agent")
		return
	}
	respondOK(w, "deleted")
}
