package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/service"
)

type OrderHandler struct {
	svc Reservations
}

func NewOrderHandler(svc Reservations) *OrderHandler { return &OrderHandler{svc: svc} }

type createOrderRequest struct {
	PerformanceID string   `json:"performanceId"`
	SeatIDs       []string `json:"seatIds"`
	Amount        int64    `json:"amount"`
	Currency      string   `json:"currency"`
}

type createOrderResponse struct {
	OrderID             string            `json:"orderId"`
	Status              model.OrderStatus `json:"status"`
	PaymentClientSecret string            `json:"paymentClientSecret"`
}

type orderResponse struct {
	OrderID       string            `json:"orderId"`
	PerformanceID string            `json:"performanceId"`
	Status        model.OrderStatus `json:"status"`
	SeatIDs       []string          `json:"seatIds"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentRef    *string           `json:"paymentRef,omitempty"`
	CreatedAt     *time.Time        `json:"createdAt,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	r := orderResponse{
		OrderID:       o.ID,
		PerformanceID: o.PerformanceID,
		Status:        o.Status,
		SeatIDs:       o.SeatIDs,
		Amount:        o.AmountCents,
		Currency:      o.Currency,
		PaymentRef:    o.PaymentRef,
	}
	if !o.CreatedAt.IsZero() {
		t := o.CreatedAt.UTC()
		r.CreatedAt = &t
	}
	return r
}

// Create handles POST /orders.
func (h *OrderHandler) Create(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req createOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.CreateOrder(c.Request().Context(), sess, service.CreateOrderInput{
		PerformanceID: req.PerformanceID,
		SeatIDs:       req.SeatIDs,
		AmountCents:   req.Amount,
		Currency:      req.Currency,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createOrderResponse{
		OrderID:             res.Order.ID,
		Status:              res.Order.Status,
		PaymentClientSecret: res.ClientSecret,
	})
}

// Get handles GET /orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// Cancel handles POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	o, err := h.svc.CancelOrder(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}
