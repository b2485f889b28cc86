package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowkit/flowkit/contact"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	metadataService metadata.Service
	executorService *service.ExecutionService
	sessions        persistence.SessionStorage
	contacts        *contact.Store
}

func NewServer(httpPort int, metadataService metadata.Service, executorService *service.ExecutionService, sessions persistence.SessionStorage, contacts *contact.Store) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:            httpPort,
		metadataService: metadataService,
		executorService: executorService,
		sessions:        sessions,
		contacts:        contacts,
	}

	router := mux.NewRouter()
	router.HandleFunc("/event", s.HandleInboundEvent).Methods(http.MethodPost)
	router.HandleFunc("/flow", s.HandleSaveFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow", s.HandleListFlows).Methods(http.MethodGet)
	router.HandleFunc("/flow/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flow/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flow/{id}/start", s.HandleStartFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/{id}/activate", s.HandleActivateFlow).Methods(http.MethodPost)
	router.HandleFunc("/agent", s.HandleSaveAgent).Methods(http.MethodPost)
	router.HandleFunc("/agent/{id}", s.HandleGetAgent).Methods(http.MethodGet)
	router.HandleFunc("/agent/{id}", s.HandleDeleteAgent).Methods(http.MethodDelete)
	router.HandleFunc("/contact", s.HandleListContacts).Methods(http.MethodGet)
	router.HandleFunc("/contact/{address}", s.HandleGetContact).Methods(http.MethodGet)
	router.HandleFunc("/contact/{address}/tag", s.HandleAddTag).Methods(http.MethodPost)
	router.HandleFunc("/contact/{address}/tag/{tag}", s.HandleRemoveTag).Methods(http.MethodDelete)
	router.HandleFunc("/session/{address}", s.HandleGetSessions).Methods(http.MethodGet)
	router.HandleFunc("/session/{address}", s.HandleResetSession).Methods(http.MethodDelete)
	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "ok")
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
