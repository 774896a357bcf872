package quizgate

import (
	"context"
	"sync"
	"time"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal/audit"
	"github.com/twnoc/quizgate/internal/limiters"
	"github.com/twnoc/quizgate/internal/localstore"
	"github.com/twnoc/quizgate/internal/remotestore"
	"github.com/twnoc/quizgate/internal/tokens"
	"github.com/twnoc/quizgate/session"
)

// Engine is the assembled quizgate surface. Build one through [Builder];
// a zero Engine is not usable. Engine methods are safe for concurrent use.
type Engine struct {
	config     Config
	sealer     *envelope.Sealer
	local      localstore.Store
	remote     remotestore.Store
	authority  *tokens.Authority
	sessions   *session.Store
	guard      *limiters.Guard
	trail      *audit.Trail
	dispatcher *audit.Dispatcher
	metrics    *Metrics
	totp       *totpManager
	receipts   *receiptSigner
	now        func() time.Time

	// pending holds MFA login challenges keyed by device fingerprint.
	pendingMu sync.Mutex
	pending   map[string]pendingLogin

	// totpMu serializes enrollment read-modify-write.
	totpMu sync.Mutex
}

// pendingLogin is an in-process MFA challenge: the credential check passed
// and a TOTP confirmation is outstanding for this device.
type pendingLogin struct {
	Username  string
	ExpiresAt int64
}

const pendingLoginTTL = 5 * time.Minute

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// AuditDropped reports how many audit events were dropped by a full
// dispatcher buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot copies the engine's metric values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, category, action, fingerprint string, success bool, errVal error, details map[string]string) {
	if e == nil || e.dispatcher == nil {
		return
	}
	event := AuditEvent{
		Timestamp:   e.now().UnixMilli(),
		Category:    category,
		Action:      action,
		Fingerprint: fingerprint,
		Success:     success,
		Details:     details,
	}
	if errVal != nil {
		event.Error = errVal.Error()
	}
	e.dispatcher.Emit(ctx, event)
}

func (e *Engine) ready() bool {
	return e != nil && e.authority != nil && e.sessions != nil && e.guard != nil
}
