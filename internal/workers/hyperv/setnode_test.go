package hyperv

import (
	"reflect"
	"testing"

	"github.com/nmslite/hostgatherer/internal/worker"
)

func TestSetNode_SameConfigTwice(t *testing.T) {
	testCases := []struct {
		name string
		raw  map[string]any
	}{
		{name: "basic auth", raw: map[string]any{"hostname": "hv01.lab", "username": "admin", "password": "pw"}},
		{name: "NTLM over HTTPS", raw: map[string]any{"hostname": "hv01.lab", "port": 5986, "username": "admin", "password": "pw", "domain": "LAB", "use_https": true, "insecure": true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := New().(*Worker)
			cfg, err := worker.Resolve(tc.raw, w.Parameters())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}

			if err := w.SetNode(cfg); err != nil {
				t.Fatalf("First SetNode failed: %v", err)
			}
			first := w.settings

			if err := w.SetNode(cfg); err != nil {
				t.Fatalf("Second SetNode failed: %v", err)
			}
			if !reflect.DeepEqual(first, w.settings) {
				t.Errorf("Expected identical settings, got %+v then %+v", first, w.settings)
			}

			if err := w.SetNode(worker.NodeConfig{"hostname": "hv02.lab", "username": "u", "password": "p"}); err != nil {
				t.Fatalf("SetNode with another config failed: %v", err)
			}
			if err := w.SetNode(cfg); err != nil {
				t.Fatalf("SetNode back to the first config failed: %v", err)
			}
			if !reflect.DeepEqual(first, w.settings) {
				t.Errorf("Expected settings to be fully replaced, got %+v, want %+v", w.settings, first)
			}
		})
	}
}
