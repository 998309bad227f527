package testutil

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
)

func TestWriteArtifacts(t *testing.T) {
	a := WriteArtifacts(t)
	for _, p := range []string{a.Scaler, a.Encoder, a.CatBoost, a.Sequence} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %s not written: %v", p, err)
		}
		if !strings.HasPrefix(p, a.Dir) {
			t.Errorf("artifact %s outside %s", p, a.Dir)
		}
	}
}

func TestFixtureLabelsMatchRows(t *testing.T) {
	rows := strings.Count(strings.TrimSpace(SheetCSV), "\n")
	if len(CatBoostLabels) != rows || len(SequenceLabels) != rows {
		t.Fatalf("expected %d labels per model, got %d and %d", rows, len(CatBoostLabels), len(SequenceLabels))
	}
}

func TestNewFormRequest(t *testing.T) {
	req := NewFormRequest("/predict", url.Values{"pm25": {"1"}})
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if err := req.ParseForm(); err != nil {
		t.Fatalf("ParseForm: %v", err)
	}
	if got := req.PostForm.Get("pm25"); got != "1" {
		t.Errorf("pm25 = %q, want 1", got)
	}
}
