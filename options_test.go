package echobench

import "testing"

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	if o.Engine != EngineEpoll {
		t.Errorf("expected default engine epoll, got %s", o.Engine)
	}
	if o.Port != 9999 {
		t.Errorf("expected default port 9999, got %d", o.Port)
	}
	if o.Logger == nil {
		t.Error("expected a default logger")
	}
	if o.Reporter == nil {
		t.Error("expected a default reporter config")
	}
}

func TestOptionsWithDefaultsPreservesSetFields(t *testing.T) {
	o := Options{Engine: EngineMultishot, Port: 4242}.withDefaults()

	if o.Engine != EngineMultishot {
		t.Errorf("expected engine to be preserved, got %s", o.Engine)
	}
	if o.Port != 4242 {
		t.Errorf("expected port to be preserved, got %d", o.Port)
	}
}
