package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
)

type quoteRequest struct {
	Code     string     `json:"code" binding:"required"`
	Quantity int64      `json:"quantity" binding:"gte=1"`
	Segment  string     `json:"segment" binding:"max=64"`
	At       *time.Time `json:"at"`
}

func (s *Server) QuotePrice(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.pricingSvc.Quote(c.Request.Context(), pricingdomain.QuoteRequest{
		OrgID:    orgIDFrom(c),
		Code:     req.Code,
		Quantity: req.Quantity,
		Segment:  req.Segment,
		At:       req.At,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type mailboxQuoteRequest struct {
	ExistingCount int64 `json:"existing_count" binding:"gte=0"`
	NewCount      int64 `json:"new_count" binding:"gte=0"`
}

func (s *Server) QuoteMailbox(c *gin.Context) {
	var req mailboxQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	quote, err := s.pricingSvc.QuoteMailbox(c.Request.Context(), pricingdomain.MailboxQuoteRequest{
		ExistingCount: req.ExistingCount,
		NewCount:      req.NewCount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) GetOrgSegment(c *gin.Context) {
	orgID := orgIDFrom(c)
	segment, err := s.pricingSvc.GetOrgSegment(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"organization_id": orgID.String(),
		"segment":         segment,
	}})
}

type segmentRequest struct {
	Segment string `json:"segment" binding:"required,max=64"`
}

func (s *Server) SetOrgSegment(c *gin.Context) {
	var req segmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	segment, err := s.pricingSvc.SetOrgSegment(c.Request.Context(), orgIDFrom(c), req.Segment)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": segment})
}
