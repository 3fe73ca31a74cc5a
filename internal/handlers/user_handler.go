package handlers

import (
	"net/http"

	"github.com/grvbrk/vidcatalog_server/internal/middlewares"
	"github.com/grvbrk/vidcatalog_server/internal/utils"
	"go.uber.org/zap"
)

type UserHandler struct {
	Logger *zap.Logger
}

func NewUserHandler(logger *zap.Logger) *UserHandler {
	return &UserHandler{
		Logger: logger,
	}
}

// HandlerWhoAmI echoes the resolved identity.
func (uh *UserHandler) HandlerWhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.GetIdentityFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{"user_id": identity.DisplayName})
}

func (uh *UserHandler) HandlerHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.Envelope{"status": "ok"})
}
