package checkout

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

func orderLink(orderID uuid.UUID) *string {
	link := fmt.Sprintf("/orders/%s", orderID)
	return &link
}

// sellerNotifications builds one new_order message per seller, in seller order.
func sellerNotifications(order *models.Order, items []models.OrderItem, sellers []uuid.UUID) []models.Notification {
	counts := make(map[uuid.UUID]int, len(sellers))
	for _, item := range items {
		counts[item.SellerID] += item.Quantity
	}

	out := make([]models.Notification, 0, len(sellers))
	for _, sellerID := range sellers {
		out = append(out, models.Notification{
			UserID:  sellerID,
			Type:    enums.NotificationTypeNewOrder,
			Title:   "New order received",
			Message: fmt.Sprintf("You have a new order with %d unit(s) of your products.", counts[sellerID]),
			Link:    orderLink(order.ID),
		})
	}
	return out
}

func buyerNotification(order *models.Order) *models.Notification {
	return &models.Notification{
		UserID:  order.BuyerID,
		Type:    enums.NotificationTypeOrderPlaced,
		Title:   "Order placed",
		Message: fmt.Sprintf("Your order totaling %s has been placed.", order.TotalAmount.StringFixed(2)),
		Link:    orderLink(order.ID),
	}
}
