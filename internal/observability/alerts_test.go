package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`stockpool_[a-z_]+`)

// exportedNames exercises every collector once so it shows up in a scrape.
func exportedNames(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.ObserveMovement("SALE", 1)
	m.ObserveShortfall(1)
	m.ObserveRevaluation(1)
	m.ObserveLowStock()
	m.ObserveJob("inventory:revaluation", errors.New("boom"))
	m.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	names := map[string]bool{}
	for _, line := range strings.Split(scrape(t, m), "\n") {
		if strings.HasPrefix(line, "# TYPE ") {
			names[strings.Fields(line)[2]] = true
		}
	}
	return names
}

func TestInventoryAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "inventory.yml"))
	if err != nil {
		t.Fatalf("read alert file: %v", err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		t.Fatalf("parse alert file: %v", err)
	}
	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-inventory.md"))
	if err != nil {
		t.Fatalf("read runbook: %v", err)
	}
	names := exportedNames(t)

	severities := map[string]string{
		"HighErrorRate":         "critical",
		"OversellShortfall":     "warning",
		"RevaluationJobFailing": "critical",
	}
	seen := 0
	for _, group := range rules.Groups {
		if group.Name != "inventory" {
			continue
		}
		for _, rule := range group.Rules {
			seen++
			want, ok := severities[rule.Alert]
			if !ok {
				t.Fatalf("unexpected rule %q", rule.Alert)
			}
			if got := rule.Labels["severity"]; got != want {
				t.Errorf("%s: severity %q, want %q", rule.Alert, got, want)
			}
			if rule.For == "" || rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
				t.Errorf("%s: hold duration, summary and description are required", rule.Alert)
			}
			for _, name := range metricName.FindAllString(rule.Expr, -1) {
				if !names[name] {
					t.Errorf("%s: expression uses unknown metric %s", rule.Alert, name)
				}
			}
			ref := rule.Annotations["runbook"]
			anchor, found := strings.CutPrefix(ref, "docs/runbook-inventory.md#")
			if !found || !strings.Contains(strings.ToLower(string(runbook)), "## "+strings.ReplaceAll(anchor, "-", " ")) {
				t.Errorf("%s: runbook %q does not resolve to a section", rule.Alert, ref)
			}
		}
	}
	if seen != len(severities) {
		t.Fatalf("expected %d inventory rules, got %d", len(severities), seen)
	}
}
