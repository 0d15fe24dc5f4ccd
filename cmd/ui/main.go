package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"market-stress-go/internal/config"
	"market-stress-go/internal/database"
	"market-stress-go/internal/logger"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed("ui", cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// The browser never resets the journal it reads.
	dbCfg := cfg.Database
	dbCfg.Reset = false
	db, err := database.NewDatabase(&dbCfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.UIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           newRouter(NewAPIHandler(log, db)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Starting web server", zap.String("address", addr))

	if err := server.ListenAndServe(); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}

// newRouter wires the journal endpoints.
func newRouter(apiHandler *APIHandler) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/evaluations", apiHandler.EvaluationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/statistics", apiHandler.StatisticsHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs", apiHandler.RunsHandler).Methods(http.MethodGet)
	return r
}
