package payment

import "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"

// Factory resolves the payment strategy for a method.
type Factory struct {
	point   *PointProcessor
	gateway *GatewayProcessor
}

func NewFactory(point *PointProcessor, gateway *GatewayProcessor) *Factory {
	return &Factory{point: point, gateway: gateway}
}

func (f *Factory) ProcessorFor(m payment.Method) (payment.Processor, error) {
	switch m {
	case payment.MethodPoint:
		return f.point, nil
	case payment.MethodCard:
		return f.gateway, nil
	default:
		return nil, payment.ErrUnsupportedMethod
	}
}
