package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

// Error codes for failed collections. The set is closed; the stored
// error_code metadata always carries one of these values.
const (
	CodeConnection = "CONNECTION_ERROR"
	CodeQuery      = "QUERY_ERROR"
	CodeTimeout    = "TIMEOUT_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeConnector  = "CONNECTOR_ERROR"
)

// maxErrorMessageLen bounds the error_message metadata on failed snapshots.
const maxErrorMessageLen = 500

// Error is a classified collection failure.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps err with code unless it already carries a classification.
func classify(code, message string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Connector collects observations from one kind of source.
type Connector interface {
	// Collect runs one observation of src and returns a SUCCESS snapshot.
	Collect(ctx context.Context, src config.Source) (types.Snapshot, error)

	// TestConnection verifies src is reachable without recording anything.
	TestConnection(ctx context.Context, src config.Source) error
}

// New returns the Connector for the source's type.
func New(src config.Source) (Connector, error) {
	switch src.Type {
	case "sql":
		return &sqlConnector{}, nil
	case "http":
		return &httpConnector{}, nil
	default:
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("unsupported source type %q", src.Type)}
	}
}

// CollectWithErrorHandling runs one collection and never fails: any error is
// folded into a COLLECT_FAILED snapshot with error_code and error_message
// metadata, so the failure is stored and alerted on like any observation.
func CollectWithErrorHandling(ctx context.Context, c Connector, src config.Source) types.Snapshot {
	start := time.Now()
	snap, err := c.Collect(ctx, src)
	if err == nil {
		return snap
	}

	code, message := CodeConnector, err.Error()
	var ce *Error
	if errors.As(err, &ce) {
		code = ce.Code
	}
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}

	return types.Snapshot{
		SourceName:    src.Name,
		CollectedAt:   time.Now().UTC(),
		CollectStatus: types.CollectFailed,
		Metrics:       map[string]any{},
		Metadata: map[string]any{
			"connector_type": src.Type,
			"dialect":        src.Dialect,
			"duration_ms":    time.Since(start).Milliseconds(),
			"error_code":     code,
			"error_message":  message,
		},
	}
}
