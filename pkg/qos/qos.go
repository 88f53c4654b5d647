package qos

// Ordering controls whether independent work for one event may overlap.
type Ordering uint

const (
	// Ordered processes saga definitions one after another in registry order.
	Ordered Ordering = iota
	// Unordered lets saga definitions of the same event run concurrently.
	Unordered
)

func (o Ordering) String() string {
	switch o {
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	default:
		return "unknown"
	}
}
