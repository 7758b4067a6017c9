package keystache

import "fmt"

// PaymentStatus is the final outcome of a pay-invoice request.
type PaymentStatus int

const (
	PaymentRejected PaymentStatus = 0
	PaymentFailed   PaymentStatus = -1
	PaymentPaid     PaymentStatus = 1
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentRejected:
		return "rejected"
	case PaymentFailed:
		return "failed"
	case PaymentPaid:
		return "paid"
	}

	return "unknown"
}

func (s PaymentStatus) MarshalJSON() ([]byte, error) {
	switch s {
	case PaymentRejected, PaymentFailed, PaymentPaid:
		return []byte(`"` + s.String() + `"`), nil
	}
	return nil, fmt.Errorf("unknown payment status %d", int(s))
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("payment status must be a string, got '%s'", data)
	}
	parsed, err := ParsePaymentStatus(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch s {
	case "rejected":
		return PaymentRejected, nil
	case "failed":
		return PaymentFailed, nil
	case "paid":
		return PaymentPaid, nil
	}
	return PaymentRejected, fmt.Errorf("unknown payment status '%s'", s)
}
