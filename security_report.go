package quizgate

import "context"

// SecurityReport surveys the configured protections and the current token
// population. Probing the remote store is best effort; an unreachable
// remote is reported, not returned as an error.
func (e *Engine) SecurityReport(ctx context.Context) (SecurityReport, error) {
	if !e.ready() {
		return SecurityReport{}, ErrEngineNotReady
	}

	report := SecurityReport{
		SealedStorage:     e.sealer != nil,
		RemoteConfigured:  e.remote != nil,
		AuditEnabled:      e.trail != nil,
		LoginLockoutArmed: e.config.Login.MaxAttempts > 0,
		MetricsEnabled:    e.metrics.Enabled(),
	}

	if e.remote != nil {
		report.RemoteReachable = e.remote.Ping(ctx) == nil
	}

	enabled, err := e.TOTPEnabled(ctx)
	if err != nil {
		return SecurityReport{}, err
	}
	report.TOTPEnabled = enabled

	stats, err := e.TokenStatistics(ctx)
	if err != nil {
		return SecurityReport{}, err
	}
	report.TokenStats = stats

	e.emitAudit(ctx, AuditCategorySystem, "security_report", "", true, nil, nil)
	return report, nil
}
