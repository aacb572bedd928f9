package pressure

// Level is a pressure tier. Ordering is total:
// Normal < Warning < Critical < Emergency.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
	Emergency
)

const levelCount = int(Emergency) + 1

func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Emergency:
		return "emergency"
	default:
		return "unknown"
	}
}
