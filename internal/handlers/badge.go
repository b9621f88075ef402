package handlers

import (
	"net/http"

	"studyhub-backend/internal/achievement"
)

type BadgeHandler struct {
	catalog *achievement.Catalog
}

func NewBadgeHandler(catalog *achievement.Catalog) *BadgeHandler {
	return &BadgeHandler{catalog: catalog}
}

func (h *BadgeHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"badges": h.catalog.Badges(),
	})
}
