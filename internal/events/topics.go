package events

const (
	TopicPaymentSettled  = "pos.payment.settled"
	TopicPaymentRefunded = "pos.payment.refunded"
	TopicOrderClosed     = "pos.order.closed"
)
