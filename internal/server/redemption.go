package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type calculateRedemptionRequest struct {
	Points int64 `json:"points"`
}

func (s *Server) CalculateRedemption(c *gin.Context) {
	var req calculateRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	discount, err := s.loyaltySvc.CalculateRedemption(c.Request.Context(), req.Points)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"points":   req.Points,
		"discount": discount,
	}})
}

type applyRedemptionRequest struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Points     int64  `json:"points"`
	Subtotal   int64  `json:"subtotal"`
}

func (s *Server) ApplyRedemption(c *gin.Context) {
	var req applyRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.loyaltySvc.ApplyPointsToOrder(c.Request.Context(),
		strings.TrimSpace(req.CustomerID),
		strings.TrimSpace(req.OrderID),
		req.Points,
		req.Subtotal,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
