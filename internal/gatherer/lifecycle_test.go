package gatherer

import (
	"context"
	"testing"
)

func TestLifecycle_ForwardOnly(t *testing.T) {
	lc := newLifecycle(testLogger())
	ctx := context.Background()

	for _, event := range []string{eventValidate, eventExecute, eventMerge} {
		if err := lc.Event(ctx, event); err != nil {
			t.Fatalf("Event %s failed: %v", event, err)
		}
	}
	if lc.Current() != StateMerged {
		t.Fatalf("Expected merged, got %s", lc.Current())
	}

	for _, event := range []string{eventValidate, eventExecute, eventSkip} {
		if err := lc.Event(ctx, event); err == nil {
			t.Errorf("Expected %s to be rejected from merged", event)
		}
	}
}

func TestLifecycle_SkipFromEveryActiveState(t *testing.T) {
	paths := [][]string{
		{},
		{eventValidate},
		{eventValidate, eventExecute},
	}

	for _, path := range paths {
		lc := newLifecycle(testLogger())
		for _, event := range path {
			if err := lc.Event(context.Background(), event); err != nil {
				t.Fatalf("Event %s failed: %v", event, err)
			}
		}
		if err := lc.Event(context.Background(), eventSkip); err != nil {
			t.Errorf("Skip after %v failed: %v", path, err)
		}
		if lc.Current() != StateSkipped {
			t.Errorf("Expected skipped, got %s", lc.Current())
		}
	}
}
