package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleRosterSync reconciles stored accounts against the workspace
// directory and returns the full report. ?dry_run=true computes the report
// without applying it.
func (s *Server) HandleRosterSync(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))

	report, err := s.reconcileSvc.Reconcile(c.Request.Context(), dryRun)
	if err != nil {
		if report != nil && report.Partial {
			// Earlier chunks are committed; surface both the report and
			// the failure.
			s.log.Error("roster sync partially applied", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "roster sync partially applied",
				"report": report,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
