package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/listing"
	"github.com/gin-gonic/gin"
)

const (
	templateHome = "home.html"
	templateList = "list.html"
)

func (h *httpHandler) handleHome(c *gin.Context) {
	h.serveListing(c, "/home", templateHome, listing.Query{})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	query := listing.Query{Search: strings.TrimSpace(c.Query("q"))}
	if rawTag := strings.TrimSpace(c.Query("tag")); rawTag != "" {
		tagID, err := strconv.ParseInt(rawTag, 10, 64)
		if err != nil || tagID <= 0 {
			h.respondError(c, access.Invalid("invalid tag"))
			return
		}
		query.TagID = &tagID
	}
	h.serveListing(c, "/search", templateHome, query)
}

// handleMyList lists the signed-in user's own listable articles.
func (h *httpHandler) handleMyList(c *gin.Context) {
	ownerID := principalFrom(c).ID
	h.serveListing(c, "/list", templateList, listing.Query{OwnerID: &ownerID})
}

func (h *httpHandler) serveListing(c *gin.Context, prefix, templateName string, query listing.Query) {
	page, ok := listing.ParsePage(c.Param("page"))
	if !ok {
		target := prefix + "/1"
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			target += "?" + rawQuery
		}
		c.Redirect(http.StatusFound, target)
		return
	}
	query.Page = page

	result, err := h.listings.Build(c.Request.Context(), query, principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := map[string]any{
		"rows":       result.Rows,
		"page":       result.Page,
		"totalPages": result.TotalPages,
		"totalItems": result.TotalItems,
		"hotList":    result.HotList,
		"banner":     result.Banner,
		"pathPrefix": prefix,
		"q":          query.Search,
		"rawQuery":   c.Request.URL.RawQuery,
	}
	if query.TagID != nil {
		data["tag"] = *query.TagID
	}
	h.renderPage(c, http.StatusOK, templateName, data)
}
