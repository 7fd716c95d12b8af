package syncctl

import (
	"context"

	"github.com/amanmcp/syncore/internal/ignore"
)

// runReconcileIgnore is the gitignore-change reconciliation workflow: when
// the codebase's ignore file changes at runtime, rebuild the matcher and
// run a full reconciliation scan so newly ignored files are dropped and
// newly unignored files are picked up.
//
// A nested vs. root .gitignore change could be distinguished, with root
// changes diffing old/new pattern sets to avoid a full filesystem walk when
// patterns were only added. This Controller always takes the
// full-reconciliation path instead — simpler, at the cost of an extra walk
// on the common "patterns only added" case.
func (c *Controller) runReconcileIgnore(ctx context.Context) taskResult {
	var endSpan func(error)
	ctx, endSpan = c.startSpan(ctx, "reconcile_ignore")
	res := c.doReconcileIgnore(ctx)
	endSpan(res.Err)
	return res
}

func (c *Controller) doReconcileIgnore(ctx context.Context) taskResult {
	if c.IgnorePatternsPath != "" {
		fresh := ignore.New()
		if err := fresh.AddFromFile(c.IgnorePatternsPath); err != nil {
			c.Logger.Warn("syncctl: failed to reload ignore patterns, keeping previous matcher", "error", err)
		} else {
			c.Ignore = fresh
			c.Detector.Ignore = fresh
		}
	}
	return c.doFullIndex(ctx, false)
}

// ReconcileOnStartup is the startup-reconciliation workflow: run once when
// a Manager loads an already-indexed codebase from the persisted snapshot,
// to catch changes made while the process wasn't running to observe them
// via the Watcher.
func (c *Controller) ReconcileOnStartup() taskResult {
	st := c.Status()
	if st.Status != StatusIndexed {
		return taskResult{}
	}
	return c.SyncNow()
}
