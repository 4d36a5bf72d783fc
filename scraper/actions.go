package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/site"
)

// actionTimeout is the per-action deadline when the action sets none.
const actionTimeout = 10 * time.Second

// runActions performs the site's interactions in order. A required action
// that fails stops the run; an optional one whose selector never shows up
// is skipped.
func runActions(ctx context.Context, page engine.Page, actions []site.Action) error {
	for i, action := range actions {
		if err := runAction(ctx, page, action); err != nil {
			return fmt.Errorf("action %d (%s %s) failed after %d completed: %w", i, action.Kind, action.Selector, i, err)
		}
	}
	return nil
}

func runAction(ctx context.Context, page engine.Page, action site.Action) error {
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = actionTimeout
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !page.WaitFor(actionCtx, action.Selector, timeout) {
		if action.Optional {
			return nil
		}
		return fmt.Errorf("element %q not found", action.Selector)
	}

	switch action.Kind {
	case site.ActionWait:
		return nil
	case site.ActionClick:
		return page.Click(actionCtx, action.Selector)
	case site.ActionType:
		return page.EnterText(actionCtx, action.Selector, action.Text)
	default:
		return fmt.Errorf("unknown action type: %s", action.Kind)
	}
}
