package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
)

func (s *Server) ListRollupTables(c *gin.Context) {
	tables, err := s.rollups.Tables(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tables})
}

func (s *Server) ListSnapshots(c *gin.Context) {
	var query struct {
		Period string `form:"period"`
		From   string `form:"from"`
		To     string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	q := domain.SnapshotQuery{
		Table:  strings.TrimSpace(c.Param("table")),
		Period: strings.TrimSpace(query.Period),
		From:   strings.TrimSpace(query.From),
		To:     strings.TrimSpace(query.To),
	}
	if q.Period == "" && (q.From == "" || q.To == "") {
		AbortWithError(c, newValidationError("period", "required", "period or from and to are required"))
		return
	}

	rows, err := s.rollups.Snapshots(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListHistory(c *gin.Context) {
	p := strings.TrimSpace(c.Query("period"))
	if p == "" {
		AbortWithError(c, newValidationError("period", "required", "period is required"))
		return
	}

	rows, err := s.rollups.History(c.Request.Context(), strings.TrimSpace(c.Param("table")), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListCommits(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		AbortWithError(c, newValidationError("period", "required", "from and to are required"))
		return
	}

	commits, err := s.rollups.Commits(c.Request.Context(), strings.TrimSpace(c.Param("table")), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commits})
}
