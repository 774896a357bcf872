package quizgate

import (
	"context"
	"io"
)

// RecordAuditEvent queues an application-level audit event. Zero
// timestamps are stamped at dispatch.
func (e *Engine) RecordAuditEvent(ctx context.Context, event AuditEvent) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.dispatcher == nil {
		return ErrAuditDisabled
	}
	e.dispatcher.Emit(ctx, event)
	return nil
}

// AuditQuery returns matching trail events, newest first.
func (e *Engine) AuditQuery(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.trail == nil {
		return nil, ErrAuditDisabled
	}
	return e.trail.Query(ctx, filter)
}

// AuditStatistics summarizes the trail: totals, today's volume, success
// rate, most frequent actions, and recent failures.
func (e *Engine) AuditStatistics(ctx context.Context) (AuditStats, error) {
	if !e.ready() {
		return AuditStats{}, ErrEngineNotReady
	}
	if e.trail == nil {
		return AuditStats{}, ErrAuditDisabled
	}
	return e.trail.Statistics(ctx)
}

// AuditCount reports how many events the trail currently holds.
func (e *Engine) AuditCount(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if e.trail == nil {
		return 0, ErrAuditDisabled
	}
	return e.trail.Count(ctx)
}

// AuditClear wipes the trail. The wipe itself is recorded afterward.
func (e *Engine) AuditClear(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.trail == nil {
		return ErrAuditDisabled
	}
	if err := e.trail.Clear(ctx); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditCategoryAdmin, "audit_clear", "", true, nil, nil)
	return nil
}

// AuditExport streams the full trail to w as indented JSON, oldest first,
// with details opened for offline review.
func (e *Engine) AuditExport(ctx context.Context, w io.Writer) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.trail == nil {
		return ErrAuditDisabled
	}
	if err := e.trail.Export(ctx, w); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditCategoryAdmin, "audit_export", "", true, nil, nil)
	return nil
}

// AuditWriteErrors reports how many trail writes failed since startup.
func (e *Engine) AuditWriteErrors() uint64 {
	if e == nil || e.trail == nil {
		return 0
	}
	return e.trail.WriteErrors()
}
