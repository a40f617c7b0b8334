package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/minitwit/internal/service"
)

type SeedHandler struct {
	seed   *service.SeedService
	logger *slog.Logger
}

func NewSeedHandler(seed *service.SeedService, logger *slog.Logger) *SeedHandler {
	return &SeedHandler{seed: seed, logger: logger}
}

// HandleSeed loads the demo dataset once.
//
// HTTP: POST /api/seed
// RESPONSE: {"status": "seeded", "users": 5, ...} or {"status": "already_seeded"}
func (h *SeedHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	res, err := h.seed.Seed(r.Context())
	if err != nil {
		h.logger.Error("seeding failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
