package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/refiner"
	"github.com/soundprediction/refiner/pkg/server/dto"
)

// RefineHandler handles context refinement requests
type RefineHandler struct {
	refiner refiner.Refiner
}

// NewRefineHandler creates a new refine handler
func NewRefineHandler(r refiner.Refiner) *RefineHandler {
	return &RefineHandler{
		refiner: r,
	}
}

// Refine handles POST /api/v1/refine
func (h *RefineHandler) Refine(c *gin.Context) {
	var req dto.RefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: "invalid_request", Message: err.Error()})
		return
	}

	queries := make([]refiner.Query, len(req.Queries))
	for i, q := range req.Queries {
		passages := make([]refiner.Passage, len(q.Passages))
		for j, p := range q.Passages {
			passages[j] = refiner.Passage{Title: p.Title, Text: p.Text}
		}
		queries[i] = refiner.Query{ID: q.ID, Text: q.Text, Passages: passages}
	}

	result, err := h.refiner.Refine(c.Request.Context(), queries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: "refine_failed", Message: err.Error()})
		return
	}

	resp := dto.RefineResponse{
		Fingerprint:    result.Fingerprint,
		FromCache:      result.FromCache,
		CompressionPct: result.Metrics.CompressionPct,
		Contexts:       make([]dto.ComposedContextResponse, len(result.Contexts)),
	}
	for i, ctx := range result.Contexts {
		resp.Contexts[i] = dto.ComposedContextResponse{
			QueryID:  ctx.QueryID,
			Passages: ctx.Passages,
		}
	}

	c.JSON(http.StatusOK, resp)
}
