package fstore

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"time"
)

const (
	opInsert   = "insert"
	opGet      = "get"
	opAlter    = "alter"
	opDelete   = "delete"
	opContains = "contains"
	opGetKeys  = "get_keys"
	opLen      = "len"
)

// observe counts an operation and its failure. Used as
// defer observe(op, time.Now(), &err).
func observe(op string, start time.Time, err *error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`fskv_ops_total{op=%q}`, op)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`fskv_op_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	if *err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`fskv_op_errors_total{op=%q}`, op)).Inc()
	}
}
