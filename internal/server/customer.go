package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/pkg/db/pagination"
)

func (s *Server) GetBalance(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.pointsSvc.GetBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	limit, offset := query.Normalized()

	transactions, total, err := s.pointsSvc.ListTransactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      transactions,
		"page_info": pagination.BuildPageInfo(total, limit, offset, len(transactions)),
	})
}

func (s *Server) GetMembership(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.membershipSvc.Status(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EnrollCustomer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.membershipSvc.Enroll(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeCommerce, nil, "membership.enrolled", "membership", &id, map[string]any{
			"customer_id": id,
			"tier_slug":   resp.TierSlug,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetireCustomer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.membershipSvc.Retire(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeCommerce, nil, "membership.retired", "membership", &id, map[string]any{
			"customer_id": id,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "retired"})
}
