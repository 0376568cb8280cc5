package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createNoteRequest struct {
	Title   string `json:"title" binding:"required,notblank,max=200"`
	Content string `json:"content" binding:"required,notblank"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	user := userFrom(c)
	list, err := h.notes.List(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list notes", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to fetch notes")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, bindingMessage(err))
		return
	}

	user := userFrom(c)
	note, err := h.notes.Create(c.Request.Context(), user.ID, request.Title, request.Content)
	if err != nil {
		h.logger.Error("failed to create note", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to create note")
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	user := userFrom(c)
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || noteID <= 0 {
		writeError(c, http.StatusNotFound, codeNotFound, "Note not found")
		return
	}

	err = h.notes.Delete(c.Request.Context(), noteID, user.ID)
	if errors.Is(err, notes.ErrNoteNotFound) {
		writeError(c, http.StatusNotFound, codeNotFound, "Note not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete note", zap.Int64("user_id", user.ID), zap.Int64("note_id", noteID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, codeInternal, "Failed to delete note")
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Note deleted successfully"})
}
