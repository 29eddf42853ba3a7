package server

import (
	"net/http"

	"coverscope/internal/gateway/handler"
	"coverscope/internal/gateway/middleware"
)

func NewMux(projects *handler.ProjectHandler, scanWS *handler.ScanSocketHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/projects", projects.HandleProjects)
	mux.HandleFunc("/api/projects/", projects.HandleProjectByID)

	// Scan status push stream
	mux.HandleFunc("/ws/scan", scanWS.HandleScanWS)

	return middleware.CORS(mux)
}
