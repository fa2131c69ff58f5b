package pos

type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderClosed    OrderStatus = "CLOSED"
	OrderCancelled OrderStatus = "CANCELLED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderOpen:      {OrderClosed: true, OrderCancelled: true},
	OrderClosed:    {OrderOpen: true}, // reopen, manager/owner only
	OrderCancelled: {OrderOpen: true},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}
