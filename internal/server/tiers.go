package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
)

type createTierRequest struct {
	Slug               string  `json:"slug"`
	Name               string  `json:"name"`
	Rank               int     `json:"rank"`
	OrderThreshold     int64   `json:"order_threshold"`
	SpendThreshold     int64   `json:"spend_threshold"`
	PointsMultiplier   float64 `json:"points_multiplier"`
	DiscountPercentage float64 `json:"discount_percentage"`
	IsDefault          bool    `json:"is_default"`
}

func (s *Server) CreateTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tierSvc.Create(c.Request.Context(), tierdomain.CreateTierRequest{
		Slug:               strings.TrimSpace(req.Slug),
		Name:               strings.TrimSpace(req.Name),
		Rank:               req.Rank,
		OrderThreshold:     req.OrderThreshold,
		SpendThreshold:     req.SpendThreshold,
		PointsMultiplier:   req.PointsMultiplier,
		DiscountPercentage: req.DiscountPercentage,
		IsDefault:          req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTiers(c *gin.Context) {
	var query struct {
		IncludeInactive bool `form:"include_inactive"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tierSvc.List(c.Request.Context(), query.IncludeInactive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTierBySlug(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))

	resp, err := s.tierSvc.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateTierRequest struct {
	Name               *string  `json:"name"`
	OrderThreshold     *int64   `json:"order_threshold"`
	SpendThreshold     *int64   `json:"spend_threshold"`
	PointsMultiplier   *float64 `json:"points_multiplier"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	IsActive           *bool    `json:"is_active"`
}

func (s *Server) UpdateTier(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))

	var req updateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tierSvc.Update(c.Request.Context(), slug, tierdomain.UpdateTierRequest{
		Name:               req.Name,
		OrderThreshold:     req.OrderThreshold,
		SpendThreshold:     req.SpendThreshold,
		PointsMultiplier:   req.PointsMultiplier,
		DiscountPercentage: req.DiscountPercentage,
		IsActive:           req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
