package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	"go.uber.org/zap"
)

type triggerRunRequest struct {
	// TargetDate selects the billing date as YYYY-MM-DD. Empty means the
	// previous UTC day.
	TargetDate string `json:"target_date"`
}

// TriggerBillingRun starts one synchronous billing run and returns its
// report. A failed run maps to 500 with the report in the body so the
// caller can see which stage broke.
func (s *Server) TriggerBillingRun(c *gin.Context) {
	var req triggerRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %s", ErrInvalidRequest, "malformed body"))
			return
		}
	}

	target := s.clock.Now().AddDate(0, 0, -1)
	if date := strings.TrimSpace(req.TargetDate); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: target_date must be YYYY-MM-DD", ErrInvalidRequest))
			return
		}
		target = parsed
	}

	report, err := s.scheduler.Run(c.Request.Context(), target)
	if err != nil {
		s.log.Error("billing run trigger failed",
			zap.String("run_id", report.RunID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListLedger returns the ledger rows for one billing date in insertion
// order. With latest=true it collapses to the newest row per tenant.
func (s *Server) ListLedger(c *gin.Context) {
	dateParam := strings.TrimSpace(c.Query("date"))
	if dateParam == "" {
		AbortWithError(c, fmt.Errorf("%w: date is required", ErrInvalidRequest))
		return
	}
	date, err := time.Parse("2006-01-02", dateParam)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest))
		return
	}

	records, err := s.ledgerSvc.ListByDate(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if strings.EqualFold(c.Query("latest"), "true") {
		latest := ledgerdomain.LatestByTenant(records)
		collapsed := make([]ledgerdomain.BillingRecord, 0, len(latest))
		for _, record := range records {
			if current, ok := latest[record.TenantKey]; ok && current.ID == record.ID {
				collapsed = append(collapsed, record)
			}
		}
		c.JSON(http.StatusOK, gin.H{"data": collapsed, "count": len(collapsed)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}
