package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestScan_WritesReport(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"intro.md":      "(sec-intro)=\n# Intro\n",
		"guide/deep.md": ":::{note}\n(in-div)=\n:::\n",
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := NewDefaultConfig()
	cfg.Project.Root = dir
	cfg.App.LogLevel = 12 // above error, keeps test output quiet

	var out bytes.Buffer
	if err := Scan(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var report ScanReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report %q: %v", out.String(), err)
	}
	if report.Files != 2 {
		t.Errorf("files = %d, want 2", report.Files)
	}
	names := map[string]bool{}
	for _, tg := range report.Records {
		names[tg.Name] = true
	}
	if !names["sec-intro"] || !names["in-div"] || len(report.Records) != 2 || report.Targets != 2 {
		t.Errorf("records = %+v (count %d)", report.Records, report.Targets)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("Run without config should fail")
	}
	if err := Scan(context.Background()); err == nil {
		t.Error("Scan without config should fail")
	}
}
