package handlers

import (
	"encoding/json"
	"net/http"

	"imagebatch/internal/batch"
	"imagebatch/internal/infra"
)

// App holds the read-only dependencies of the operator API.
type App struct {
	Batch      *batch.Service
	ErrorLimit int
	Logger     infra.Logger
}

// NewApp wires the handler container.
func NewApp(service *batch.Service, errorLimit int, logger infra.Logger) *App {
	return &App{Batch: service, ErrorLimit: errorLimit, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
