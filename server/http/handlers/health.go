package handlers

import (
	"net/http"

	"partidas-service/internal/utils"
)

func Health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
