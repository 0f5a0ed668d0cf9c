package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceejayvjose/ict-repair-system/internal/verify"
)

type VerificationHandler struct {
	gate *verify.Gate
}

func NewVerificationHandler(gate *verify.Gate) *VerificationHandler {
	return &VerificationHandler{gate: gate}
}

// Issue hands out a fresh 4-digit challenge. The code is returned in the
// response on purpose: the gate is a speed bump the UI displays next to
// the form, not a secret.
func (h *VerificationHandler) Issue(c *gin.Context) {
	c.JSON(http.StatusOK, h.gate.Issue())
}
