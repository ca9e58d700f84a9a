package services

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// newID builds a process-unique identifier like SUB-1725100000000000000-0042.
func newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, time.Now().UnixNano(), atomic.AddUint64(&idSeq, 1)%10000)
}
