package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/report"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

const dateLayout = "2006-01-02"

type LedgerHandler struct {
	uc     ledger.UseCase
	loc    *time.Location
	logger logger.ZapLogger
}

func NewLedgerHandler(uc ledger.UseCase, loc *time.Location, log logger.ZapLogger) *LedgerHandler {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerHandler{
		uc:     uc,
		loc:    loc,
		logger: log,
	}
}

func (h *LedgerHandler) Register(g *echo.Group) {
	g.POST("/items/:id/transactions", h.PostTransaction)
	g.POST("/receive", h.Receive)
	g.POST("/sales", h.CompleteSale)
	g.GET("/transactions", h.ListTransactions)
	g.POST("/transactions/bulk-delete", h.RemoveTransactions)
}

type postTransactionRequest struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Channel  string `json:"channel"`
	Date     string `json:"date"`
}

type receiveRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

type saleRequest struct {
	Lines   []dto.SaleLine `json:"lines"`
	Channel string         `json:"channel"`
	Date    string         `json:"date"`
}

type removeRequest struct {
	IDs []string `json:"ids"`
}

type listResponse struct {
	Data     []dto.Movement `json:"data"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// parseDate accepts RFC 3339 timestamps or calendar dates. A calendar date
// keeps the current time of day so same-day postings stay in entry order.
func (h *LedgerHandler) parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(dateLayout, value, h.loc)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidDate, map[string]interface{}{"Value": value})
	}
	now := time.Now().In(h.loc)
	t := time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), h.loc)
	return &t, nil
}

func (h *LedgerHandler) PostTransaction(c echo.Context) error {
	var req postTransactionRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		return err
	}

	item, err := h.uc.PostTransaction(c.Request().Context(), &dto.PostTransactionInput{
		ItemID:   c.Param("id"),
		Type:     req.Type,
		Quantity: req.Quantity,
		Channel:  req.Channel,
		Date:     date,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *LedgerHandler) Receive(c echo.Context) error {
	var req receiveRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}

	item, err := h.uc.ReceiveByBarcode(c.Request().Context(), &dto.ReceiveInput{
		Barcode:  req.Barcode,
		Quantity: req.Quantity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *LedgerHandler) CompleteSale(c echo.Context) error {
	var req saleRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		return err
	}

	res, err := h.uc.CompleteSale(c.Request().Context(), &dto.SaleInput{
		Lines:   req.Lines,
		Channel: req.Channel,
		Date:    date,
	})
	if err != nil {
		if res == nil || len(res.Items) == 0 {
			return err
		}
		logger.FromContext(c.Request().Context(), h.logger).Error("sale applied partially",
			zap.Int("items", len(res.Items)),
			zap.Error(err),
		)
		return c.JSON(response.Status(err), res)
	}
	logger.FromContext(c.Request().Context(), h.logger).Info("sale completed",
		zap.Int("lines", len(res.Transactions)),
	)
	return c.JSON(http.StatusCreated, res)
}

func (h *LedgerHandler) ListTransactions(c echo.Context) error {
	f := &dto.TransactionFilters{
		Query: c.QueryParam("q"),
		Type:  model.TransactionType(strings.ToUpper(c.QueryParam("type"))),
	}
	if f.Type != "" && !f.Type.Valid() {
		return apperr.Validation(apperr.CodeInvalidType, map[string]interface{}{"Type": c.QueryParam("type")})
	}

	if v := c.QueryParam("start"); v != "" {
		day, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidDate, map[string]interface{}{"Value": v})
		}
		start := report.StartOfDay(day, h.loc)
		f.StartDate = &start
	}
	if v := c.QueryParam("end"); v != "" {
		day, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidDate, map[string]interface{}{"Value": v})
		}
		end := report.EndOfDay(day, h.loc)
		f.EndDate = &end
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))

	movements, total, err := h.uc.ListTransactions(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{
		Data:     movements,
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
	})
}

// RemoveTransactions answers with the partial result when some items
// failed, alongside the error status.
func (h *LedgerHandler) RemoveTransactions(c echo.Context) error {
	var req removeRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(err)
	}

	res, err := h.uc.RemoveTransactions(c.Request().Context(), req.IDs)
	if err != nil {
		if res == nil || res.Removed == 0 {
			return err
		}
		logger.FromContext(c.Request().Context(), h.logger).Error("transaction removal incomplete",
			zap.Int("removed", res.Removed),
			zap.Error(err),
		)
		return c.JSON(response.Status(err), res)
	}
	return c.JSON(http.StatusOK, res)
}
