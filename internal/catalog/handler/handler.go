package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

type CatalogHandler struct {
	uc     catalog.UseCase
	logger logger.ZapLogger
}

func NewCatalogHandler(uc catalog.UseCase, log logger.ZapLogger) *CatalogHandler {
	return &CatalogHandler{
		uc:     uc,
		logger: log,
	}
}

// Register mounts the item routes. Static segments are registered before
// :id so echo's router resolves them first.
func (h *CatalogHandler) Register(g *echo.Group) {
	g.GET("/items", h.ListItems)
	g.POST("/items", h.CreateItem)
	g.POST("/items/bulk-delete", h.BulkDeleteItems)
	g.POST("/items/import", h.ImportItems)
	g.GET("/items/barcode/:barcode", h.GetItemByBarcode)
	g.GET("/items/:id", h.GetItem)
	g.PUT("/items/:id", h.UpdateItem)
	g.DELETE("/items/:id", h.DeleteItem)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type importRequest struct {
	Rows []dto.ImportRow `json:"rows"`
}

func (h *CatalogHandler) log(c echo.Context) logger.ZapLogger {
	return logger.FromContext(c.Request().Context(), h.logger)
}

func (h *CatalogHandler) ListItems(c echo.Context) error {
	items, err := h.uc.SearchItems(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHandler) GetItem(c echo.Context) error {
	item, err := h.uc.GetItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) GetItemByBarcode(c echo.Context) error {
	item, err := h.uc.GetItemByBarcode(c.Request().Context(), c.Param("barcode"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) CreateItem(c echo.Context) error {
	var input dto.CreateItemInput
	if err := c.Bind(&input); err != nil {
		return response.BadRequest(err)
	}

	item, err := h.uc.CreateItem(c.Request().Context(), &input)
	if err != nil {
		return err
	}
	h.log(c).Info("item created", zap.String("item_id", item.ID), zap.String("barcode", item.Barcode))
	return c.JSON(http.StatusCreated, item)
}

func (h *CatalogHandler) UpdateItem(c echo.Context) error {
	var input dto.UpdateItemInput
	if err := c.Bind(&input); err != nil {
		return response.BadRequest(err)
	}
	input.ID = c.Param("id")

	item, err := h.uc.UpdateItem(c.Request().Context(), &input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) DeleteItem(c echo.Context) error {
	id := c.Param("id")
	if err := h.uc.DeleteItem(c.Request().Context(), id); err != nil {
		return err
	}
	h.log(c).Info("item deleted", zap.String("item_id", id))
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHandler) BulkDeleteItems(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}

	res, err := h.uc.BulkDeleteItems(c.Request().Context(), req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *CatalogHandler) ImportItems(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}

	// Row and chunk failures are reported in the result, not as an error.
	res, err := h.uc.ImportItems(c.Request().Context(), req.Rows)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
