package planapply

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies apply failures for the HTTP layer.
type ErrorKind string

const (
	// все созданные записи удалены; повтор безопасен (после RetryAfter, если ключ не освобождён)
	KindPartialPersistFailure ErrorKind = "partial_persist_failure"
	// откат не удался, в батче остались CommittedIDs
	KindInconsistentState ErrorKind = "inconsistent_state"
	// параллельный вызов с тем же ключом не завершился за время ожидания
	KindInProgress ErrorKind = "apply_in_progress"
)

// ApplyError is returned when a plan could not be committed.
type ApplyError struct {
	Kind         ErrorKind
	Key          string
	CommittedIDs []string
	// RetryAfter > 0: ключ ещё держит pending-claim и освободится по истечении lease
	RetryAfter time.Duration
	Err        error
}

func (e *ApplyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "apply %s: key=%q", e.Kind, e.Key)
	if len(e.CommittedIDs) > 0 {
		fmt.Fprintf(&b, " committed_ids=%v", e.CommittedIDs)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ApplyError) Unwrap() error { return e.Err }
