package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fekuna/omnipos-stock-service/internal/report"
)

type ReportHandler struct {
	uc report.UseCase
}

func NewReportHandler(uc report.UseCase) *ReportHandler {
	return &ReportHandler{uc: uc}
}

func (h *ReportHandler) Register(g *echo.Group) {
	r := g.Group("/reports")
	r.GET("/overview", h.Overview)
	r.GET("/sales", h.Sales)
	r.GET("/purchases", h.Purchases)
	r.GET("/valuation", h.Valuation)
	r.GET("/turnover", h.Turnover)
	r.GET("/top-products", h.TopProducts)
	r.GET("/brands", h.Brands)
	r.GET("/channels", h.Channels)
	r.GET("/stock-health", h.StockHealth)
	r.GET("/no-sales", h.NoSales)
	r.GET("/recent", h.Recent)
}

func intParam(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func rangeInput(c echo.Context) report.RangeInput {
	return report.RangeInput{
		Start: c.QueryParam("start"),
		End:   c.QueryParam("end"),
		Limit: intParam(c, "limit"),
	}
}

func (h *ReportHandler) Overview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.uc.Overview(c.Request().Context()))
}

func (h *ReportHandler) Sales(c echo.Context) error {
	res, err := h.uc.Sales(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) Purchases(c echo.Context) error {
	res, err := h.uc.Purchases(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) Valuation(c echo.Context) error {
	res, err := h.uc.Valuation(c.Request().Context(), c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) Turnover(c echo.Context) error {
	res, err := h.uc.Turnover(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) TopProducts(c echo.Context) error {
	res, err := h.uc.TopProducts(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) Brands(c echo.Context) error {
	return c.JSON(http.StatusOK, h.uc.Brands(c.Request().Context()))
}

func (h *ReportHandler) Channels(c echo.Context) error {
	res, err := h.uc.Channels(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ReportHandler) StockHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.uc.StockHealth(c.Request().Context(), intParam(c, "threshold")))
}

func (h *ReportHandler) NoSales(c echo.Context) error {
	res, err := h.uc.NoSales(c.Request().Context(), rangeInput(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Recent serves the movement feed; ?type=out limits it to sales.
func (h *ReportHandler) Recent(c echo.Context) error {
	onlyOut := c.QueryParam("type") == "out" || c.QueryParam("type") == "OUT"
	return c.JSON(http.StatusOK, h.uc.Recent(c.Request().Context(), intParam(c, "limit"), onlyOut))
}
