package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
)

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req pricingruledomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	rule, err := s.ruleSvc.CreateRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) ListPricingRules(c *gin.Context) {
	var req pricingruledomain.ListRulesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	rules, err := s.ruleSvc.ListRules(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) GetPricingRule(c *gin.Context) {
	rule, err := s.ruleSvc.GetRule(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) UpdatePricingRule(c *gin.Context) {
	var req pricingruledomain.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	rule, err := s.ruleSvc.UpdateRule(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeletePricingRule(c *gin.Context) {
	if err := s.ruleSvc.DeleteRule(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddPricingRuleCondition(c *gin.Context) {
	var req pricingruledomain.ConditionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	condition, err := s.ruleSvc.AddCondition(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": condition})
}

func (s *Server) RemovePricingRuleCondition(c *gin.Context) {
	err := s.ruleSvc.RemoveCondition(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("condition_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
