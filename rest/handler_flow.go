package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleSaveFlow(w http.ResponseWriter, r *http.Request) {
	var def model.FlowDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow definition")
		return
	}
	defer r.Body.Close()
	if len(def.Id) == 0 {
		def.Id = uuid.New().String()
	}
	if err := s.metadataService.SaveFlow(def); err != nil {
		logger.Error("error saving flow", zap.String("flow", def.Id), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"id": def.Id})
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.metadataService.ListActiveFlows()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error listing flows")
		return
	}
	out := make([]map[string]string, 0, len(defs))
	for _, g := range defs {
		out = append(out, map[string]string{"id": g.Id, "name": g.Name})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := s.metadataService.GetFlowDefinition(id)
	if err != nil {
		if _, ok := err.(persistence.FlowNotFoundError); ok {
			respondWithError(w, http.StatusNotFound, "flow not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "error getting flow")
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteFlow(id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error deleting flow")
		return
	}
	respondOK(w, "deleted")
}

// HandleActivateFlow flips the active bit so a flow can be taken out of
// trigger matching without deleting it.
func (s *Server) HandleActivateFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request")
		return
	}
	defer r.Body.Close()
	def, err := s.metadataService.GetFlowDefinition(id)
	if err != nil {
		if _, ok := err.(persistence.FlowNotFoundError); ok {
			respondWithError(w, http.StatusNotFound, "flow not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "error getting flow")
		return
	}
	def.Active = req.Active
	if err := s.metadataService.SaveFlow(*def); err != nil {
		respondWithError(w, http.StatusInternalServerError, "error saving flow")
		return
	}
	respondOK(w, "updated")
}

// HandleStartFlow starts a flow for an address without trigger evaluation.
func (s *Server) HandleStartFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Address) == 0 {
		respondWithError(w, http.StatusBadRequest, "request needs address")
		return
	}
	defer r.Body.Close()
	if err := s.executorService.StartFlow(r.Context(), id, req.Address); err != nil {
		logger.Error("error starting flow", zap.String("flow", id), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error starting flow")
		return
	}
	respondOK(w, "started")
}
