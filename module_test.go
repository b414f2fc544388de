package isopool

import (
	"strings"
	"testing"
)

func TestWrapESModuleDefaultExportBecomesGlobalProperties(t *testing.T) {
	source := `export default { fetch(req) { return req; } };`
	result, err := wrapESModule(source, "__mod")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(result, "export default") {
		t.Errorf("wrapped output should not contain 'export default', got %q", result)
	}
	if !strings.Contains(result, "__mod") {
		t.Errorf("wrapped output should reference the global name, got %q", result)
	}
}

func TestWrapESModuleNamedExports(t *testing.T) {
	source := `export function fetch(req) { return req; }
export function scheduled(event) {}`
	result, err := wrapESModule(source, "__mod")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(result, "export function") {
		t.Errorf("wrapped output should strip the export keyword, got %q", result)
	}
}

func TestWrapESModuleSyntaxErrorFails(t *testing.T) {
	if _, err := wrapESModule("export default function( {", "__mod"); err == nil {
		t.Fatal("expected an error transforming invalid syntax")
	}
}

func TestLoaderRegisterAndResolve(t *testing.T) {
	l := NewLoader()
	l.Register("trailbase:main", "export default {};")
	src, err := l.Resolve("trailbase:main")
	if err != nil {
		t.Fatal(err)
	}
	if src != "export default {};" {
		t.Errorf("got %q", src)
	}
}

func TestLoaderResolveUnregisteredWithoutFallbackErrors(t *testing.T) {
	l := NewLoader()
	if _, err := l.Resolve("missing:ref"); err == nil {
		t.Fatal("expected error for an unregistered module with no fallback")
	}
}

func TestLoaderFallbackIsConsulted(t *testing.T) {
	l := NewLoader()
	l.Fallback = func(ref ModuleRef) (string, error) {
		return "export default { ref: " + string(ref) + " };", nil
	}
	src, err := l.Resolve("dynamic:thing")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "dynamic:thing") {
		t.Errorf("expected fallback source to mention ref, got %q", src)
	}
}
