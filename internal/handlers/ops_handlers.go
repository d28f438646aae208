package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/cache"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/repository"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/scheduling"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/services"
)

// OpsHandler serves the operational endpoints: watermark inspection, universe
// sync, and the per-pair kill switch.
type OpsHandler struct {
	watermarkRepo    *repository.WatermarkRepository
	entityRepo       *repository.EntityRepository
	universeSvc      *services.UniverseService
	memCache         *cache.MemoryCache
	staleness        time.Duration
	failureThreshold int
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(
	watermarkRepo *repository.WatermarkRepository,
	entityRepo *repository.EntityRepository,
	universeSvc *services.UniverseService,
	memCache *cache.MemoryCache,
	staleness time.Duration,
	failureThreshold int,
) *OpsHandler {
	return &OpsHandler{
		watermarkRepo:    watermarkRepo,
		entityRepo:       entityRepo,
		universeSvc:      universeSvc,
		memCache:         memCache,
		staleness:        staleness,
		failureThreshold: failureThreshold,
	}
}

// GetSummary handles GET /watermarks/:dataset/summary
// @Summary Watermark summary for a dataset
// @Description Aggregate counts of watermark state for one dataset
// @Tags watermarks
// @Produce json
// @Param dataset path string true "Dataset name"
// @Success 200 {object} models.WatermarkSummary
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /watermarks/{dataset}/summary [get]
func (h *OpsHandler) GetSummary(c *gin.Context) {
	ds, err := models.DatasetByName(c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown_dataset", Message: err.Error()})
		return
	}

	if summary, ok := h.memCache.GetSummary(ds.Name); ok {
		c.JSON(http.StatusOK, summary)
		return
	}

	summary, err := h.watermarkRepo.Summary(c.Request.Context(), ds.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	h.memCache.SetSummary(ds.Name, summary)
	c.JSON(http.StatusOK, summary)
}

// ListEntities handles GET /entities
// @Summary List the tracked entity universe
// @Description Returns every tracked entity ordered by natural key
// @Tags entities
// @Produce json
// @Success 200 {array} models.Entity
// @Failure 500 {object} models.ErrorResponse
// @Router /entities [get]
func (h *OpsHandler) ListEntities(c *gin.Context) {
	ents, err := h.entityRepo.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ents)
}

// GetEntity handles GET /entities/:symbol
// @Summary Fetch one entity by its ticker
// @Tags entities
// @Produce json
// @Param symbol path string true "Entity natural key"
// @Success 200 {object} models.Entity
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /entities/{symbol} [get]
func (h *OpsHandler) GetEntity(c *gin.Context) {
	ent, err := h.entityRepo.GetByNaturalKey(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, repository.ErrEntityNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ent)
}

// candidateView is one row of the candidate listing with its scheduling
// decision and plan size.
type candidateView struct {
	NaturalKey     string `json:"natural_key"`
	EntityID       int64  `json:"entity_id"`
	Reason         string `json:"reason"`
	Due            bool   `json:"due"`
	PlannedPeriods int    `json:"planned_periods"`
	FirstPeriod    string `json:"first_period,omitempty"`
	LastPeriod     string `json:"last_period,omitempty"`
}

// ListCandidates handles GET /watermarks/:dataset/candidates
// @Summary Dry-run view of scheduling candidates
// @Description Lists candidates for a dataset with their eligibility reason and planned periods, without fetching anything
// @Tags watermarks
// @Produce json
// @Param dataset path string true "Dataset name"
// @Param limit query int false "Maximum candidates to return"
// @Param prefix query string false "Natural key prefix filter"
// @Param include_ineligible query bool false "Include operator-disabled pairs"
// @Param include_failed query bool false "Classify with the circuit-breaker override, as --retry-failed would"
// @Success 200 {array} candidateView
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /watermarks/{dataset}/candidates [get]
func (h *OpsHandler) ListCandidates(c *gin.Context) {
	ds, err := models.DatasetByName(c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown_dataset", Message: err.Error()})
		return
	}

	filter := models.CandidateFilter{
		KeyPrefix:         c.Query("prefix"),
		IncludeIneligible: c.Query("include_ineligible") == "true",
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	candidates, err := h.watermarkRepo.ListCandidates(c.Request.Context(), ds.Name, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	engine := scheduling.Eligibility{
		Staleness:        h.staleness,
		FailureThreshold: h.failureThreshold,
		IncludeFailed:    c.Query("include_failed") == "true",
	}
	now := time.Now().UTC()

	views := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		reason := engine.Classify(&cand.Entity, cand.Watermark, now)
		view := candidateView{
			NaturalKey: cand.Entity.NaturalKey,
			EntityID:   cand.Entity.ID,
			Reason:     string(reason),
			Due:        reason.Due(),
		}
		if view.Due {
			periods, _ := scheduling.Plan(ds, &cand.Entity, cand.Watermark, scheduling.ModeIncremental, now)
			view.PlannedPeriods = len(periods)
			if len(periods) > 0 {
				view.FirstPeriod = periods[0].Label()
				view.LastPeriod = periods[len(periods)-1].Label()
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, views)
}

// SyncUniverse handles POST /admin/sync-universe
// @Summary Sync the entity universe from the listing feed
// @Description Pulls active and delisted listings, assigns identities to new tickers and stamps termination dates
// @Tags admin
// @Produce json
// @Success 200 {object} services.SyncUniverseResult
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/sync-universe [post]
func (h *OpsHandler) SyncUniverse(c *gin.Context) {
	result, err := h.universeSvc.SyncUniverse(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResetFailed handles POST /admin/watermarks/:dataset/reset-failed
// @Summary Clear failure counters for a dataset
// @Description Resets consecutive failure counters and restores eligibility for every suspended or failing pair of a dataset
// @Tags admin
// @Produce json
// @Param dataset path string true "Dataset name"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/watermarks/{dataset}/reset-failed [post]
func (h *OpsHandler) ResetFailed(c *gin.Context) {
	ds, err := models.DatasetByName(c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown_dataset", Message: err.Error()})
		return
	}

	reset, err := h.watermarkRepo.ResetFailed(c.Request.Context(), ds.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	h.memCache.InvalidateSummary(ds.Name)
	log.Infof("reset %d failing pair(s) for %s", reset, ds.Name)
	c.JSON(http.StatusOK, gin.H{"dataset_name": ds.Name, "reset": reset})
}

type setEligibleRequest struct {
	Eligible *bool `json:"eligible" binding:"required"`
}

// SetEligible handles POST /admin/watermarks/:dataset/:symbol/eligible
// @Summary Flip the processing kill switch for one pair
// @Description Enables or disables processing of one (entity, dataset) pair; enabling also clears the failure counter
// @Tags admin
// @Accept json
// @Produce json
// @Param dataset path string true "Dataset name"
// @Param symbol path string true "Entity natural key"
// @Param body body setEligibleRequest true "Desired eligibility"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/watermarks/{dataset}/{symbol}/eligible [post]
func (h *OpsHandler) SetEligible(c *gin.Context) {
	ds, err := models.DatasetByName(c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown_dataset", Message: err.Error()})
		return
	}

	var req setEligibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	ent, err := h.entityRepo.GetByNaturalKey(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, repository.ErrEntityNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	err = h.watermarkRepo.SetEligible(c.Request.Context(), ent.ID, ds.Name, *req.Eligible)
	if errors.Is(err, repository.ErrEntityNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "pair has no watermark yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
		return
	}

	h.memCache.InvalidateSummary(ds.Name)
	log.Infof("eligibility for %s/%s set to %t", ent.NaturalKey, ds.Name, *req.Eligible)
	c.JSON(http.StatusOK, gin.H{"natural_key": ent.NaturalKey, "dataset_name": ds.Name, "eligible": *req.Eligible})
}
