package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
)

func (s *Server) GetProgramConfig(c *gin.Context) {
	resp, err := s.programSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateProgramConfigRequest struct {
	ProgramType            *string  `json:"program_type"`
	Price                  *int64   `json:"price"`
	DurationMonths         *int     `json:"duration_months"`
	EvaluationPeriodMonths *int     `json:"evaluation_period_months"`
	EvaluationTrigger      *string  `json:"evaluation_trigger"`
	AutoEnrollOnFirstOrder *bool    `json:"auto_enroll_on_first_order"`
	EarningType            *string  `json:"earning_type"`
	EarningRate            *float64 `json:"earning_rate"`
	RedemptionRate         *float64 `json:"redemption_rate"`
	IsEnabled              *bool    `json:"is_enabled"`
}

func (s *Server) UpdateProgramConfig(c *gin.Context) {
	var req updateProgramConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := programdomain.UpdateConfigRequest{
		Price:                  req.Price,
		DurationMonths:         req.DurationMonths,
		EvaluationPeriodMonths: req.EvaluationPeriodMonths,
		AutoEnrollOnFirstOrder: req.AutoEnrollOnFirstOrder,
		EarningRate:            req.EarningRate,
		RedemptionRate:         req.RedemptionRate,
		IsEnabled:              req.IsEnabled,
	}
	if req.ProgramType != nil {
		pt := programdomain.ProgramType(*req.ProgramType)
		update.ProgramType = &pt
	}
	if req.EvaluationTrigger != nil {
		trigger := programdomain.EvaluationTrigger(*req.EvaluationTrigger)
		update.EvaluationTrigger = &trigger
	}
	if req.EarningType != nil {
		et := programdomain.EarningType(*req.EarningType)
		update.EarningType = &et
	}

	resp, err := s.programSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
