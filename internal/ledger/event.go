package ledger

import "github.com/shopspring/decimal"

// Action says what happened to an entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// EntityKind names the kind of entity a ChangeEvent describes.
type EntityKind string

const (
	EntityCartLine EntityKind = "cart_line"
	EntityOrder    EntityKind = "order"
	EntityProduct  EntityKind = "product"
)

// ChangeEvent describes a committed mutation. Events are never persisted
// and never retried.
type ChangeEvent struct {
	Action  Action         `json:"action"`
	Kind    EntityKind     `json:"model"`
	Payload map[string]any `json:"data"`
}

// CartLineEvent builds the event published for a cart line mutation.
func CartLineEvent(action Action, l CartLine) ChangeEvent {
	return ChangeEvent{
		Action: action,
		Kind:   EntityCartLine,
		Payload: map[string]any{
			"product_id": l.ProductID,
			"name":       l.Name,
			"quantity":   l.Quantity,
			"price":      l.UnitPrice.StringFixed(2),
		},
	}
}

// ProductEvent builds the event published when a catalog row is written.
func ProductEvent(action Action, id int64, name string, price decimal.Decimal, available bool) ChangeEvent {
	return ChangeEvent{
		Action: action,
		Kind:   EntityProduct,
		Payload: map[string]any{
			"product_id": id,
			"name":       name,
			"price":      price.StringFixed(2),
			"available":  available,
		},
	}
}

// OrderEvent builds the event published for an order mutation.
func OrderEvent(action Action, o Order) ChangeEvent {
	return ChangeEvent{
		Action: action,
		Kind:   EntityOrder,
		Payload: map[string]any{
			"order_id":        o.ID,
			"id":              o.ID,
			"order_number":    o.OrderNumber,
			"product":         o.ProductName,
			"quantity":        o.Quantity,
			"total":           o.LineTotal.StringFixed(2),
			"delivery_status": string(o.Status),
		},
	}
}
