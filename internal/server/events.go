package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type orderPlacedRequest struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	OrderTotal int64  `json:"order_total"`
	OrderDate  string `json:"order_date"`
}

func (s *Server) OrderPlaced(c *gin.Context) {
	var req orderPlacedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderDate, err := parseOptionalTime(req.OrderDate)
	if err != nil {
		AbortWithError(c, newValidationError("order_date", "invalid_order_date", "invalid order_date"))
		return
	}
	if orderDate.IsZero() {
		orderDate = s.clk.Now().UTC()
	}

	resp, err := s.loyaltySvc.OnOrderPlaced(c.Request.Context(),
		strings.TrimSpace(req.CustomerID),
		strings.TrimSpace(req.OrderID),
		req.OrderTotal,
		orderDate,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type orderCancelledRequest struct {
	OrderID string `json:"order_id"`
}

func (s *Server) OrderCancelled(c *gin.Context) {
	var req orderCancelledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.loyaltySvc.OnOrderCancelled(c.Request.Context(), strings.TrimSpace(req.OrderID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type returnCompletedRequest struct {
	ReturnID       string `json:"return_id"`
	OrderID        string `json:"order_id"`
	RefundedAmount int64  `json:"refunded_amount"`
}

func (s *Server) ReturnCompleted(c *gin.Context) {
	var req returnCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.loyaltySvc.OnReturnCompleted(c.Request.Context(),
		strings.TrimSpace(req.ReturnID),
		strings.TrimSpace(req.OrderID),
		req.RefundedAmount,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type returnReversedRequest struct {
	ReturnID string `json:"return_id"`
}

func (s *Server) ReturnReversed(c *gin.Context) {
	var req returnReversedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.loyaltySvc.OnReturnReversed(c.Request.Context(), strings.TrimSpace(req.ReturnID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
