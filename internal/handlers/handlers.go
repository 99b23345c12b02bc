package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"monasterywatch/internal/apperr"
	"monasterywatch/internal/config"
	"monasterywatch/internal/middleware"
	"monasterywatch/internal/repository"
	"monasterywatch/internal/scorer"
	"monasterywatch/internal/service"
	"monasterywatch/internal/storage"
)

type HandlerSet struct {
	log               zerolog.Logger
	cfg               *config.AppConfig
	authService       *service.AuthService
	imageService      *service.ImageService
	comparisonService *service.ComparisonService
	scorerClient      *scorer.Client
	db                *pgxpool.Pool
	cache             *redis.Client
	store             *storage.ObjectStore
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	scorerClient *scorer.Client,
	cfg *config.AppConfig,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	imageRepo := repository.NewImageRepository(db)
	comparisonRepo := repository.NewComparisonRepository(db)

	auth := service.NewAuthService(userRepo, cfg, log)
	images := service.NewImageService(imageRepo, store, cfg, log)
	comparisons := service.NewComparisonService(comparisonRepo, imageRepo, store, scorerClient, cache, log)

	return HandlerSet{
		log:               log,
		cfg:               cfg,
		authService:       auth,
		imageService:      images,
		comparisonService: comparisons,
		scorerClient:      scorerClient,
		db:                db,
		cache:             cache,
		store:             store,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.GET("/me", middleware.Auth(h.cfg), h.Me)

	images := v1.Group("/images")
	images.GET("", h.ListImages)
	images.GET("/:id", h.StreamImage)
	images.GET("/:id/metadata", h.GetImageMetadata)
	images.GET("/location/:location", h.GetImagesByLocation)
	images.POST("", middleware.Auth(h.cfg), h.UploadImage)
	images.DELETE("/:id", middleware.Auth(h.cfg), h.DeleteImage)

	comparisons := v1.Group("/comparisons")
	comparisons.GET("", h.ListComparisons)
	comparisons.GET("/:id", h.GetComparison)
	comparisons.POST("", middleware.Auth(h.cfg), h.CreateComparison)
	comparisons.PATCH("/:id/notes", middleware.Auth(h.cfg), h.UpdateComparisonNotes)
	comparisons.DELETE("/:id", middleware.Auth(h.cfg), h.DeleteComparison)
}

// respondError maps the error taxonomy onto HTTP statuses. Unclassified
// errors become opaque 500s.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindInvalidArgument:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindPayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUpstream:
		status = http.StatusBadGateway
	}

	message := "internal server error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= 500 {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}

	c.JSON(status, gin.H{
		"error":   kind.String(),
		"message": message,
	})
}
