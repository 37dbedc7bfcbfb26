package presets

import "testing"

func TestResolve_FirstMatchWins(t *testing.T) {
	src := StaticSource{
		{Glob: "getty@*.service", Decision: Enable},
		{Glob: "*.service", Decision: Disable},
	}

	if d := Resolve(src, "getty@tty1.service"); d != Enable {
		t.Fatalf("expected Enable, got %v", d)
	}
	if d := Resolve(src, "nginx.service"); d != Disable {
		t.Fatalf("expected Disable, got %v", d)
	}
	if d := Resolve(src, "local.target"); d != Unspecified {
		t.Fatalf("expected Unspecified, got %v", d)
	}
}
