package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// BranchHandler exposes branch endpoints.
type BranchHandler struct {
	branches *service.BranchService
}

// NewBranchHandler constructs BranchHandler.
func NewBranchHandler(branches *service.BranchService) *BranchHandler {
	return &BranchHandler{branches: branches}
}

// List godoc
// @Summary List branches
// @Tags Branches
// @Produce json
// @Security BearerAuth
// @Param active query bool false "Filter by active state"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /branches [get]
func (h *BranchHandler) List(c *gin.Context) {
	var filter models.BranchFilter
	filter.Active = parseBoolQuery(c, "active")
	filter.Skip, filter.Limit = parsePage(c)

	branches, pagination, err := h.branches.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branches, pagination)
}

// Get godoc
// @Summary Get branch detail
// @Tags Branches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Branch ID"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [get]
func (h *BranchHandler) Get(c *gin.Context) {
	branch, err := h.branches.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Create godoc
// @Summary Create a branch
// @Tags Branches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateBranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	var req service.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	branch, err := h.branches.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, branch)
}

// Update godoc
// @Summary Update a branch
// @Tags Branches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Branch ID"
// @Param payload body service.UpdateBranchRequest true "Branch payload"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [put]
func (h *BranchHandler) Update(c *gin.Context) {
	var req service.UpdateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	branch, err := h.branches.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Delete godoc
// @Summary Delete a branch
// @Tags Branches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Branch ID"
// @Success 204
// @Router /branches/{id} [delete]
func (h *BranchHandler) Delete(c *gin.Context) {
	if err := h.branches.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
