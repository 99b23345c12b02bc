package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"monasterywatch/internal/media/sniffer"
	"monasterywatch/internal/models"
	"monasterywatch/internal/service"
)

type imageResponse struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	Location           string     `json:"location"`
	StructureComponent string     `json:"structureComponent"`
	Filename           string     `json:"filename"`
	ContentType        string     `json:"contentType"`
	SizeBytes          int64      `json:"sizeBytes"`
	CaptureDate        *time.Time `json:"captureDate,omitempty"`
	Camera             string     `json:"camera,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	ComparisonID       *string    `json:"comparisonId,omitempty"`
	UploadedAt         time.Time  `json:"uploadedAt"`
}

func toImageResponse(image models.Image) imageResponse {
	return imageResponse{
		ID:                 image.ID,
		Kind:               string(image.Kind),
		Location:           image.Location,
		StructureComponent: image.StructureComponent,
		Filename:           image.Filename,
		ContentType:        image.ContentType,
		SizeBytes:          image.SizeBytes,
		CaptureDate:        image.CaptureDate,
		Camera:             image.Camera,
		Notes:              image.Notes,
		ComparisonID:       image.ComparisonID,
		UploadedAt:         image.UploadedAt,
	}
}

func (h HandlerSet) UploadImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "image file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Upload.MaxSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "failed to read upload"})
		return
	}

	var captureDate *time.Time
	if raw := c.PostForm("captureDate"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			captureDate = &parsed
		}
	}

	image, err := h.imageService.Upload(c.Request.Context(), service.UploadInput{
		Data:               data,
		Filename:           header.Filename,
		DeclaredMIME:       sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
		Kind:               models.ImageKind(c.PostForm("kind")),
		Location:           c.PostForm("location"),
		StructureComponent: c.PostForm("structureComponent"),
		CaptureDate:        captureDate,
		Camera:             c.PostForm("camera"),
		Notes:              c.PostForm("notes"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toImageResponse(image)})
}

func (h HandlerSet) StreamImage(c *gin.Context) {
	reader, info, _, err := h.imageService.Stream(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, reader, nil)
}

func (h HandlerSet) GetImageMetadata(c *gin.Context) {
	image, err := h.imageService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toImageResponse(image)})
}

func (h HandlerSet) ListImages(c *gin.Context) {
	filter := models.ImageFilter{
		Kind:               models.ImageKind(c.Query("kind")),
		Location:           c.Query("location"),
		StructureComponent: c.Query("structureComponent"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "kind must be baseline, current or difference"})
		return
	}

	page, limit := parsePagination(c)

	images, pagination, err := h.imageService.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]imageResponse, 0, len(images))
	for _, image := range images {
		items = append(items, toImageResponse(image))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": pagination,
	})
}

// GetImagesByLocation returns the newest baseline/current pair for a
// location, the pair a client would feed into a comparison request.
func (h HandlerSet) GetImagesByLocation(c *gin.Context) {
	location := c.Param("location")
	component := c.Query("structureComponent")

	baseline, current, err := h.imageService.LatestPair(c.Request.Context(), location, component)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{
		"location":           location,
		"structureComponent": component,
		"baseline":           nil,
		"current":            nil,
	}
	if baseline != nil {
		resp["baseline"] = toImageResponse(*baseline)
	}
	if current != nil {
		resp["current"] = toImageResponse(*current)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	if err := h.imageService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "image deleted"})
}

func parsePagination(c *gin.Context) (int, int) {
	page := 1
	limit := 50

	if raw := c.Query("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page = v
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	return page, limit
}
