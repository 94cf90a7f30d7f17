package snmp

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
		{name: "v2c defaults", raw: map[string]any{"hostname": "fw01.lab"}},
		{name: "v3 authPriv", raw: map[string]any{"hostname": "fw01.lab", "version": "3", "security_level": "authPriv", "security_name": "inv", "auth_protocol": "SHA", "auth_password": "authpass", "priv_protocol": "AES", "priv_password": "privpass"}},
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

			if err := w.SetNode(worker.NodeConfig{"hostname": "sw01.lab", "community": "private"}); err != nil {
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
