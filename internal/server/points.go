package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
)

type adjustPointsRequest struct {
	// Amount is signed: positive grants points, negative removes them.
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

func (s *Server) AdjustPoints(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req adjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txType := pointsdomain.TypeAdminAdded
	if req.Amount < 0 {
		txType = pointsdomain.TypeAdminRemoved
	}

	resp, err := s.pointsSvc.Apply(c.Request.Context(), pointsdomain.ApplyRequest{
		CustomerID: id,
		Type:       txType,
		Amount:     req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
		ActorID:    strings.TrimSpace(req.ActorID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		var actorID *string
		if v := strings.TrimSpace(req.ActorID); v != "" {
			actorID = &v
		}
		_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeAdmin, actorID, "points.adjusted", "customer", &id, map[string]any{
			"customer_id": id,
			"amount":      req.Amount,
			"type":        string(txType),
			"reason":      req.Reason,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RebuildBalance(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.pointsSvc.Rebuild(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeAdmin, nil, "points.rebuilt", "customer", &id, map[string]any{
			"customer_id": id,
			"balance":     resp.Balance,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
