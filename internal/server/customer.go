package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCustomerAddress(c *gin.Context) {
	at := time.Now().UTC()
	if raw := c.Query("at"); strings.TrimSpace(raw) != "" {
		day, err := parseDay(raw)
		if err != nil {
			AbortWithError(c, newValidationError("at", "invalid_at", "at must be YYYY-MM-DD"))
			return
		}
		at = day
	}

	version, err := s.address.ValueAt(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": version})
}

func (s *Server) ListCustomerAddresses(c *gin.Context) {
	versions, err := s.address.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

type applyAddressRequest struct {
	Address       string `json:"address"`
	EffectiveDate string `json:"effective_date"`
}

func (s *Server) ApplyCustomerAddress(c *gin.Context) {
	var req applyAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effective, err := parseDay(req.EffectiveDate)
	if err != nil {
		AbortWithError(c, newValidationError("effective_date", "invalid_effective_date", "effective_date must be YYYY-MM-DD"))
		return
	}

	result, err := s.address.ApplyAttributeChange(c.Request.Context(), c.Param("id"), req.Address, effective)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
