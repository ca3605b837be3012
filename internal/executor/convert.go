package executor

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// convertCell normalizes one engine cell into its canonical string form.
// Integral values render as plain decimals, floats as non-exponential
// decimals except NaN and the infinities which keep their textual tokens,
// and SQL NULL stays a nil cell rather than the string "null".
func convertCell(value any) *string {
	if value == nil {
		return nil
	}
	var text string
	switch typed := value.(type) {
	case string:
		text = typed
	case []byte:
		text = string(typed)
	case int:
		text = strconv.FormatInt(int64(typed), 10)
	case int8:
		text = strconv.FormatInt(int64(typed), 10)
	case int16:
		text = strconv.FormatInt(int64(typed), 10)
	case int32:
		text = strconv.FormatInt(int64(typed), 10)
	case int64:
		text = strconv.FormatInt(typed, 10)
	case uint:
		text = strconv.FormatUint(uint64(typed), 10)
	case uint8:
		text = strconv.FormatUint(uint64(typed), 10)
	case uint16:
		text = strconv.FormatUint(uint64(typed), 10)
	case uint32:
		text = strconv.FormatUint(uint64(typed), 10)
	case uint64:
		text = strconv.FormatUint(typed, 10)
	case float32:
		text = formatFloat(float64(typed))
	case float64:
		text = formatFloat(typed)
	case bool:
		text = strconv.FormatBool(typed)
	case time.Time:
		text = typed.Format(time.RFC3339Nano)
	default:
		text = fmt.Sprint(typed)
	}
	return &text
}

func formatFloat(value float64) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	if math.IsInf(value, 1) {
		return "+Inf"
	}
	if math.IsInf(value, -1) {
		return "-Inf"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func convertRow(row []any) []*string {
	cells := make([]*string, len(row))
	for i, value := range row {
		cells[i] = convertCell(value)
	}
	return cells
}
