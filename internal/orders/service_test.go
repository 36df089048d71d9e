package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

type fixture struct {
	client *db.Client
	repo   Repository
	svc    Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo, client)
	require.NoError(t, err)
	return fixture{client: client, repo: repo, svc: svc}
}

func (f fixture) order(t *testing.T, buyerID, sellerID uuid.UUID, status enums.OrderStatus) *models.Order {
	t.Helper()
	ctx := context.Background()
	order := &models.Order{
		BuyerID:         buyerID,
		OrderStatus:     status,
		PaymentStatus:   enums.PaymentStatusPending,
		PaymentMethod:   enums.PaymentMethodCOD,
		ShippingAddress: "12 Rice Field Rd",
		ShippingCity:    "Cabanatuan",
		ShippingPhone:   "09170000000",
		Subtotal:        decimal.RequireFromString("40.00"),
		ShippingCost:    decimal.RequireFromString("15.00"),
		TotalAmount:     decimal.RequireFromString("55.00"),
	}
	require.NoError(t, f.repo.Create(ctx, order))
	require.NoError(t, f.repo.CreateItems(ctx, []models.OrderItem{{
		OrderID:     order.ID,
		ProductID:   uuid.New(),
		SellerID:    sellerID,
		ProductName: "Carrots",
		Quantity:    4,
		Price:       decimal.RequireFromString("10.00"),
	}}))
	return order
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func TestUpdateStatusCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roles := []enums.Role{enums.RoleBuyer, enums.RoleFarmer, enums.RoleLogistics, enums.RoleAdmin}

	for _, role := range roles {
		for _, from := range enums.OrderStatuses() {
			for _, to := range enums.OrderStatuses() {
				actor := Actor{UserID: uuid.New(), Role: role}
				buyer, seller := uuid.New(), uuid.New()
				switch role {
				case enums.RoleBuyer:
					buyer = actor.UserID
				case enums.RoleFarmer:
					seller = actor.UserID
				}
				order := f.order(t, buyer, seller, from)
				name := fmt.Sprintf("%s %s->%s", role, from, to)

				view, err := f.svc.UpdateStatus(ctx, actor, order.ID, string(to))
				var stored models.Order
				require.NoError(t, f.client.DB().First(&stored, "id = ?", order.ID).Error, name)

				if _, ok := LookupTransition(role, from, to); ok {
					require.NoError(t, err, name)
					assert.Equal(t, to, view.OrderStatus, name)
					assert.Equal(t, to, stored.OrderStatus, name)
				} else {
					requireCode(t, err, pkgerrors.CodeForbidden)
					assert.Equal(t, from, stored.OrderStatus, name)
				}

				assert.Equal(t, order.BuyerID, stored.BuyerID, name)
				assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus, name)
				assert.True(t, order.TotalAmount.Equal(stored.TotalAmount), name)
				assert.True(t, order.Subtotal.Equal(stored.Subtotal), name)
				assert.Equal(t, order.ShippingAddress, stored.ShippingAddress, name)
				assert.Nil(t, stored.TrackingNumber, name)
			}
		}
	}
}

func TestUpdateStatusRequiresRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.order(t, uuid.New(), uuid.New(), enums.OrderStatusPending)

	_, err := f.svc.UpdateStatus(ctx, Actor{UserID: uuid.New(), Role: enums.RoleFarmer}, order.ID, "confirmed")
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, order.ID, "cancelled")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateStatusWalksHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, seller := uuid.New(), uuid.New()
	order := f.order(t, buyer, seller, enums.OrderStatusPending)

	steps := []struct {
		actor Actor
		to    enums.OrderStatus
	}{
		{Actor{UserID: seller, Role: enums.RoleFarmer}, enums.OrderStatusConfirmed},
		{Actor{UserID: seller, Role: enums.RoleFarmer}, enums.OrderStatusPreparing},
		{Actor{UserID: uuid.New(), Role: enums.RoleLogistics}, enums.OrderStatusShipped},
		{Actor{UserID: uuid.New(), Role: enums.RoleLogistics}, enums.OrderStatusDelivered},
		{Actor{UserID: buyer, Role: enums.RoleBuyer}, enums.OrderStatusCompleted},
	}
	for _, step := range steps {
		view, err := f.svc.UpdateStatus(ctx, step.actor, order.ID, string(step.to))
		require.NoError(t, err, string(step.to))
		assert.Equal(t, step.to, view.OrderStatus)
	}

	_, err := f.svc.UpdateStatus(ctx, Actor{UserID: buyer, Role: enums.RoleBuyer}, order.ID, "cancelled")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: enums.RoleLogistics}

	_, err := f.svc.UpdateStatus(ctx, actor, uuid.New(), "teleported")
	requireCode(t, err, pkgerrors.CodeUnprocessable)

	_, err = f.svc.UpdateStatus(ctx, actor, uuid.New(), "shipped")
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.UpdateStatus(ctx, Actor{Role: enums.RoleLogistics}, uuid.New(), "shipped")
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := f.order(t, buyer, uuid.New(), enums.OrderStatusShipped)

	view, err := f.svc.UpdatePaymentStatus(ctx, Actor{UserID: buyer, Role: enums.RoleBuyer}, order.ID, "paid")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, view.PaymentStatus)
	assert.Equal(t, enums.OrderStatusShipped, view.OrderStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, Actor{UserID: buyer, Role: enums.RoleBuyer}, order.ID, "settled")
	requireCode(t, err, pkgerrors.CodeUnprocessable)

	_, err = f.svc.UpdatePaymentStatus(ctx, Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, order.ID, "refunded")
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.UpdatePaymentStatus(ctx, Actor{UserID: uuid.New(), Role: enums.RoleFarmer}, order.ID, "refunded")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, uuid.New(), uuid.New(), enums.OrderStatusPreparing)
	rider := Actor{UserID: uuid.New(), Role: enums.RoleLogistics}

	view, err := f.svc.UpdateTracking(ctx, rider, order.ID, "  LBC-12345  ")
	require.NoError(t, err)
	require.NotNil(t, view.TrackingNumber)
	assert.Equal(t, "LBC-12345", *view.TrackingNumber)

	_, err = f.svc.UpdateTracking(ctx, rider, order.ID, " ")
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.UpdateTracking(ctx, rider, order.ID, strings.Repeat("x", 101))
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.UpdateTracking(ctx, Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, order.ID, "LBC-1")
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.UpdateTracking(ctx, rider, uuid.New(), "LBC-1")
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, seller := uuid.New(), uuid.New()
	order := f.order(t, buyer, seller, enums.OrderStatusPending)

	for _, actor := range []Actor{
		{UserID: buyer, Role: enums.RoleBuyer},
		{UserID: seller, Role: enums.RoleFarmer},
		{UserID: uuid.New(), Role: enums.RoleLogistics},
		{UserID: uuid.New(), Role: enums.RoleAdmin},
	} {
		view, err := f.svc.Get(ctx, actor, order.ID)
		require.NoError(t, err, string(actor.Role))
		require.Len(t, view.Items, 1)
		assert.True(t, decimal.RequireFromString("40.00").Equal(view.Items[0].LineTotal))
	}

	_, err := f.svc.Get(ctx, Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, order.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
	_, err = f.svc.Get(ctx, Actor{UserID: uuid.New(), Role: enums.RoleFarmer}, order.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, seller := uuid.New(), uuid.New()
	f.order(t, buyer, seller, enums.OrderStatusPending)
	f.order(t, buyer, uuid.New(), enums.OrderStatusShipped)
	f.order(t, uuid.New(), seller, enums.OrderStatusPending)

	res, err := f.svc.List(ctx, Actor{UserID: buyer, Role: enums.RoleBuyer}, ListParams{})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 2)

	res, err = f.svc.List(ctx, Actor{UserID: seller, Role: enums.RoleFarmer}, ListParams{})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 2)

	res, err = f.svc.List(ctx, Actor{UserID: uuid.New(), Role: enums.RoleLogistics}, ListParams{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 2)

	_, err = f.svc.List(ctx, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, ListParams{Status: "lost"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	for i := 0; i < 3; i++ {
		f.order(t, buyer, uuid.New(), enums.OrderStatusPending)
	}
	actor := Actor{UserID: buyer, Role: enums.RoleBuyer}

	first, err := f.svc.List(ctx, actor, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(ctx, actor, ListParams{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first.Orders, second.Orders...) {
		assert.False(t, seen[o.ID], "duplicate order across pages")
		seen[o.ID] = true
	}
}

func TestUpdateStatusForbiddenListsAllowedTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	order := f.order(t, buyer, uuid.New(), enums.OrderStatusPending)

	_, err := f.svc.UpdateStatus(ctx, Actor{UserID: buyer, Role: enums.RoleBuyer}, order.ID, "delivered")
	requireCode(t, err, pkgerrors.CodeForbidden)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusPending, details["from"])
	assert.Equal(t, enums.OrderStatusDelivered, details["to"])
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusCancelled}, details["allowed"])

	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, order.ID, "confirmed")
	requireCode(t, err, pkgerrors.CodeForbidden)
	details, ok = pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Empty(t, details["allowed"])
}
