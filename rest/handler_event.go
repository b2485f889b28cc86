package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// HandleInboundEvent is the channel webhook: one inbound message, one
// pipeline invocation. The caller always gets a generic acknowledgement;
// graph errors terminate sessions internally and are never surfaced here.
func (s *Server) HandleInboundEvent(w http.ResponseWriter, r *http.Request) {
	var event model.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed event")
		return
	}
	defer r.Body.Close()
	if len(event.Address) == 0 {
		respondWithError(w, http.StatusBadRequest, "event needs address")
		return
	}
	if err := s.executorService.HandleEvent(r.Context(), event); err != nil {
		logger.Error("error handling inbound event", zap.String("address", event.Address), zap.Error(err))
	}
	respondOK(w, "accepted")
}
