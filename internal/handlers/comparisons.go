package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"monasterywatch/internal/models"
	"monasterywatch/internal/service"
)

type compareRequest struct {
	BaselineID         string `json:"baselineId" binding:"required"`
	CurrentID          string `json:"currentId" binding:"required"`
	Location           string `json:"location"`
	StructureComponent string `json:"structureComponent"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type comparisonResponse struct {
	ID                 string                  `json:"id"`
	Location           string                  `json:"location"`
	StructureComponent string                  `json:"structureComponent"`
	Baseline           models.ImageRef         `json:"baseline"`
	Current            models.ImageRef         `json:"current"`
	Difference         *models.ImageRef        `json:"difference,omitempty"`
	SSIMScore          float64                 `json:"ssimScore"`
	Severity           string                  `json:"severity"`
	Analysis           models.Analysis         `json:"analysis"`
	ProcessingTimeMs   int64                   `json:"processingTimeMs"`
	Status             string                  `json:"status"`
	AlertFlag          bool                    `json:"alertFlag"`
	Error              *models.ComparisonError `json:"error,omitempty"`
	Notes              string                  `json:"notes,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

func toComparisonResponse(cmp models.Comparison) comparisonResponse {
	return comparisonResponse{
		ID:                 cmp.ID,
		Location:           cmp.Location,
		StructureComponent: cmp.StructureComponent,
		Baseline:           cmp.Baseline,
		Current:            cmp.Current,
		Difference:         cmp.Difference,
		SSIMScore:          cmp.SSIMScore,
		Severity:           string(cmp.Severity),
		Analysis:           cmp.Analysis,
		ProcessingTimeMs:   cmp.ProcessingTimeMs,
		Status:             string(cmp.Status),
		AlertFlag:          cmp.AlertFlag,
		Error:              cmp.Error,
		Notes:              cmp.Notes,
		CreatedAt:          cmp.CreatedAt,
		UpdatedAt:          cmp.UpdatedAt,
	}
}

func (h HandlerSet) CreateComparison(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "baselineId and currentId are required"})
		return
	}

	cmp, err := h.comparisonService.Compare(c.Request.Context(), service.CompareInput{
		BaselineID:         req.BaselineID,
		CurrentID:          req.CurrentID,
		Location:           req.Location,
		StructureComponent: req.StructureComponent,
	})
	if err != nil {
		// A failed record may already exist; hand its ID back so the
		// client can inspect it.
		if cmp.ID != "" {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":        "upstream_error",
				"message":      err.Error(),
				"comparisonId": cmp.ID,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toComparisonResponse(cmp)})
}

func (h HandlerSet) GetComparison(c *gin.Context) {
	cmp, err := h.comparisonService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toComparisonResponse(cmp)})
}

func (h HandlerSet) ListComparisons(c *gin.Context) {
	filter := models.ComparisonFilter{
		Location: c.Query("location"),
		Severity: models.Severity(c.Query("severity")),
		Status:   models.ComparisonStatus(c.Query("status")),
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "unknown severity"})
		return
	}
	if raw := c.Query("alertFlag"); raw != "" {
		flag := raw == "true"
		filter.AlertFlag = &flag
	}

	page, limit := parsePagination(c)

	comparisons, pagination, err := h.comparisonService.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]comparisonResponse, 0, len(comparisons))
	for _, cmp := range comparisons {
		items = append(items, toComparisonResponse(cmp))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": pagination,
	})
}

func (h HandlerSet) UpdateComparisonNotes(c *gin.Context) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "invalid request body"})
		return
	}

	cmp, err := h.comparisonService.SetNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toComparisonResponse(cmp)})
}

func (h HandlerSet) DeleteComparison(c *gin.Context) {
	if err := h.comparisonService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "comparison deleted"})
}
