package isopool

import "testing"

func TestContinuationSyncReturnsNilCompleter(t *testing.T) {
	called := false
	msg := Message{
		Run: func(mod *ModuleHandle, eng *Engine) Completer {
			called = true
			return nil
		},
	}
	if got := msg.Run(nil, nil); got != nil {
		t.Errorf("expected nil Completer from a synchronous continuation, got %v", got)
	}
	if !called {
		t.Error("continuation was never invoked")
	}
}

func TestModuleRefEmptyMeansNoLoad(t *testing.T) {
	msg := Message{Module: "", Run: func(mod *ModuleHandle, eng *Engine) Completer { return nil }}
	if msg.Module != ModuleRef("") {
		t.Errorf("expected empty ModuleRef, got %q", msg.Module)
	}
}
