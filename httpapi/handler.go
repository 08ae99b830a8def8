// Package httpapi exposes the person operations over HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/zeferini/eventsourcing/httpapi/docs"
	"github.com/zeferini/eventsourcing/person"
)

const timeLayout = time.RFC3339Nano

// Options configure the handler.
type Options struct {
	// AllowedOrigins lists CORS origins. Empty or "*" allows any origin.
	AllowedOrigins []string
}

type Handler struct {
	persons person.Operations
	router  *gin.Engine
	log     *slog.Logger
}

func NewHandler(persons person.Operations, log *slog.Logger, opts Options) *Handler {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(opts.AllowedOrigins), provenance(), requestLogger(log))

	h := &Handler{
		persons: persons,
		router:  router,
		log:     log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	persons := h.router.Group("/persons")
	persons.POST("", h.createPerson)
	persons.GET("", h.listPersons)
	persons.GET("/:id", h.getPerson)
	persons.PATCH("/:id", h.updatePerson)
	persons.DELETE("/:id", h.deletePerson)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, HeaderUserID, HeaderRequestID)
	cfg.ExposeHeaders = []string{"Location", HeaderRequestID}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}

	cfg.AllowAllOrigins = len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// createPerson handles POST /persons
// @Summary Create a person
// @Tags persons
// @Accept json
// @Produce json
// @Param person body CreatePersonRequest true "Person data"
// @Param X-User-Id header string false "Acting user recorded in event metadata"
// @Success 201 {object} PersonResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /persons [post]
func (h *Handler) createPerson(c *gin.Context) {
	var req CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.persons.Create(c.Request.Context(), person.CreateRequest{Name: req.Name, Email: req.Email})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Location", "/persons/"+p.ID)
	c.JSON(http.StatusCreated, toPerson(p))
}

// listPersons handles GET /persons
// @Summary List persons
// @Description Every live person, oldest first
// @Tags persons
// @Produce json
// @Success 200 {array} PersonResponse
// @Failure 500 {object} ErrorResponse
// @Router /persons [get]
func (h *Handler) listPersons(c *gin.Context) {
	ps, err := h.persons.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPersons(ps))
}

// getPerson handles GET /persons/{id}
// @Summary Get a person
// @Tags persons
// @Produce json
// @Param id path string true "Person id"
// @Success 200 {object} PersonResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /persons/{id} [get]
func (h *Handler) getPerson(c *gin.Context) {
	p, err := h.persons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPerson(p))
}

// updatePerson handles PATCH /persons/{id}
// @Summary Update a person
// @Description Partial update; omitted fields keep their value
// @Tags persons
// @Accept json
// @Produce json
// @Param id path string true "Person id"
// @Param person body UpdatePersonRequest true "Fields to change"
// @Success 200 {object} PersonResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /persons/{id} [patch]
func (h *Handler) updatePerson(c *gin.Context) {
	var req UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.persons.Update(c.Request.Context(), c.Param("id"), person.UpdateRequest{Name: req.Name, Email: req.Email})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPerson(p))
}

// deletePerson handles DELETE /persons/{id}
// @Summary Delete a person
// @Description Returns the person as it was before deletion
// @Tags persons
// @Produce json
// @Param id path string true "Person id"
// @Success 200 {object} PersonResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /persons/{id} [delete]
func (h *Handler) deletePerson(c *gin.Context) {
	p, err := h.persons.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPerson(p))
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.log.WarnContext(c.Request.Context(), "invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: "request body must be a JSON object",
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var ve *person.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: ve.Error(),
			Fields:  ve.Fields,
		})
	case errors.Is(err, person.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		// storage details stay in the logs
		h.log.ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		})
	}
}
