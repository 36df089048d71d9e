package controllers

import (
	"net/http"

	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/farmlink-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingPhone   string `json:"shipping_phone"`
	PaymentMethod   string `json:"payment_method"`
	Notes           string `json:"notes"`
}

type checkoutResponse struct {
	Success        bool   `json:"success"`
	OrderID        string `json:"order_id,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
	AvailableStock *int   `json:"available_stock,omitempty"`
}

// Checkout places the buyer's cart as a single order. It answers with a flat
// success/message body instead of the data/error envelope.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeCheckoutError(w, r, logg, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}

		result, err := svc.Checkout(r.Context(), buyerID, checkoutsvc.Input{
			Address:       payload.ShippingAddress,
			City:          payload.ShippingCity,
			Phone:         payload.ShippingPhone,
			PaymentMethod: payload.PaymentMethod,
			Notes:         payload.Notes,
		})
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, checkoutResponse{
			Success: true,
			OrderID: result.OrderID.String(),
		})
	}
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	status, message := responses.Status(err)
	body := checkoutResponse{Success: false, Message: message}
	if typed := pkgerrors.As(err); typed != nil {
		body.Code = string(typed.Code())
		if typed.Code() == pkgerrors.CodeInsufficientStock {
			body.AvailableStock = availableStock(typed.Details())
		}
	} else {
		body.Code = string(pkgerrors.CodeInternal)
	}
	if logg != nil {
		responses.LogError(r.Context(), logg, status, err)
	}
	responses.WriteJSON(w, status, body)
}

func availableStock(details any) *int {
	fields, ok := details.(map[string]any)
	if !ok {
		return nil
	}
	if stock, ok := fields["available_stock"].(int); ok {
		return &stock
	}
	return nil
}
