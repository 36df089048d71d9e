package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxTrackingNumberLength = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order reads and the status state machine.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error)
	List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status string) (*OrderView, error)
	UpdatePaymentStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status string) (*OrderView, error)
	UpdateTracking(ctx context.Context, actor Actor, orderID uuid.UUID, trackingNumber string) (*OrderView, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo: repo,
		tx:   tx,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}

	visible := false
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleLogistics:
		visible = true
	case enums.RoleBuyer:
		visible = order.BuyerID == actor.UserID
	case enums.RoleFarmer:
		for _, item := range order.Items {
			if item.SellerID == actor.UserID {
				visible = true
				break
			}
		}
	}
	if !visible {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	view := newOrderView(*order)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	query := listOrdersParams{Limit: pagination.Clamp(params.Limit)}
	switch actor.Role {
	case enums.RoleBuyer:
		query.BuyerID = &actor.UserID
	case enums.RoleFarmer:
		query.SellerID = &actor.UserID
	case enums.RoleLogistics, enums.RoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}

	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Orders: make([]OrderView, 0, len(rows))}
	for _, row := range rows {
		result.Orders = append(result.Orders, newOrderView(row))
	}
	if next != nil {
		result.NextCursor = next.Encode()
	}
	return result, nil
}

// UpdateStatus applies one transition from the authorization table. The
// role, current status, target status and actor relationship are checked
// together under the order's row lock.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status string) (*OrderView, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	target, err := enums.ParseOrderStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnprocessable, err, "invalid order status")
	}

	var view OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}

		allowed, err := s.canTransition(ctx, repo, actor, order.ID, order.BuyerID, order.OrderStatus, target)
		if err != nil {
			return err
		}
		if !allowed {
			return transitionForbidden(order.OrderStatus, target, AllowedTargets(actor.Role, order.OrderStatus))
		}

		updated, err := repo.UpdateStatusIfCurrent(ctx, order.ID, order.OrderStatus, target, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !updated {
			return transitionForbidden(order.OrderStatus, target, nil)
		}

		return s.reload(ctx, repo, order.ID, &view)
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) canTransition(ctx context.Context, repo Repository, actor Actor, orderID, buyerID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	rel, ok := LookupTransition(actor.Role, from, to)
	if !ok {
		return false, nil
	}
	switch rel {
	case RelationBuyer:
		return buyerID == actor.UserID, nil
	case RelationSeller:
		isSeller, err := repo.IsSellerOf(ctx, orderID, actor.UserID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order seller")
		}
		return isSeller, nil
	default:
		return true, nil
	}
}

func (s *service) UpdatePaymentStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status string) (*OrderView, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	target, err := enums.ParsePaymentStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnprocessable, err, "invalid payment status")
	}
	if actor.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can update payment status")
	}

	var view OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		if order.BuyerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		if err := repo.UpdatePaymentStatus(ctx, order.ID, target, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		return s.reload(ctx, repo, order.ID, &view)
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) UpdateTracking(ctx context.Context, actor Actor, orderID uuid.UUID, trackingNumber string) (*OrderView, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != enums.RoleLogistics {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only logistics can update tracking")
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	if len(trackingNumber) > maxTrackingNumberLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number too long").
			WithDetails(map[string]any{"max_length": maxTrackingNumberLength})
	}

	var view OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		if err := repo.UpdateTracking(ctx, order.ID, trackingNumber, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tracking number")
		}
		return s.reload(ctx, repo, order.ID, &view)
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) reload(ctx context.Context, repo Repository, orderID uuid.UUID, out *OrderView) error {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	*out = newOrderView(*order)
	return nil
}

func validateActor(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	return nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

// transitionForbidden reports a rejected move. allowed is the role's
// options from the current status; it is nil when the status changed
// underneath the caller.
func transitionForbidden(from, to enums.OrderStatus, allowed []enums.OrderStatus) error {
	details := map[string]any{"from": from, "to": to}
	if allowed != nil {
		details["allowed"] = allowed
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "status transition not allowed").WithDetails(details)
}
