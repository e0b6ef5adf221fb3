package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
)

const HeaderOrg = "X-Org-Id"

// OrgContext scopes the request to the organization named in X-Org-Id.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			c.Next()
			return
		}

		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID <= 0 {
			AbortWithError(c, ErrInvalidOrg)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("org_id", orgID.String())
		c.Next()
	}
}

func (s *Server) RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := orgcontext.OrgIDFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrOrgRequired)
			return
		}
		c.Next()
	}
}

func orgIDFrom(c *gin.Context) snowflake.ID {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	return orgID
}
