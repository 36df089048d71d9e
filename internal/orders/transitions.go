package orders

import (
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Relationship is what an actor must hold on an order for a transition to apply.
type Relationship int

const (
	// RelationNone requires no link between actor and order.
	RelationNone Relationship = iota
	// RelationSeller requires the actor to sell at least one item in the order.
	RelationSeller
	// RelationBuyer requires the actor to own the order.
	RelationBuyer
)

type transitionKey struct {
	role enums.Role
	from enums.OrderStatus
	to   enums.OrderStatus
}

// transitions is the complete authorization table. A triple that is absent
// is forbidden, admin included.
var transitions = map[transitionKey]Relationship{
	{enums.RoleFarmer, enums.OrderStatusPending, enums.OrderStatusConfirmed}:    RelationSeller,
	{enums.RoleFarmer, enums.OrderStatusConfirmed, enums.OrderStatusPreparing}:  RelationSeller,
	{enums.RoleLogistics, enums.OrderStatusPreparing, enums.OrderStatusShipped}: RelationNone,
	{enums.RoleLogistics, enums.OrderStatusShipped, enums.OrderStatusDelivered}: RelationNone,
	{enums.RoleBuyer, enums.OrderStatusPending, enums.OrderStatusCancelled}:     RelationBuyer,
	{enums.RoleBuyer, enums.OrderStatusDelivered, enums.OrderStatusCompleted}:   RelationBuyer,
}

// LookupTransition returns the relationship the role needs to move an order
// from one status to another, and false when the move is never allowed.
func LookupTransition(role enums.Role, from, to enums.OrderStatus) (Relationship, bool) {
	rel, ok := transitions[transitionKey{role: role, from: from, to: to}]
	return rel, ok
}

// AllowedTargets lists the statuses a role may move an order to from the
// given status. The result is never nil.
func AllowedTargets(role enums.Role, from enums.OrderStatus) []enums.OrderStatus {
	out := []enums.OrderStatus{}
	for _, to := range enums.OrderStatuses() {
		if _, ok := LookupTransition(role, from, to); ok {
			out = append(out, to)
		}
	}
	return out
}
