package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert  string            `yaml:"alert"`
			Record string            `yaml:"record"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func loadRules(t *testing.T, name string) ruleFile {
	t.Helper()
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	rules := loadRules(t, "sqlchat_recording_rules.yaml")
	records := map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			records[rule.Record] = rule.Expr
		}
	}

	required := map[string]string{
		"sqlchat:slo_question_error_ratio_5m":   "sqlchat_questions_total",
		"sqlchat:slo_generation_latency_ms_p95": "sqlchat_generation_latency_ms_bucket",
		"sqlchat:slo_execution_latency_ms_p95":  "sqlchat_execution_latency_ms_bucket",
		"sqlchat:slo_sanitize_rejections_15m":   "sqlchat_sanitize_rejections_total",
		"sqlchat:slo_http_error_rate_5m":        "sqlchat_http_requests_total",
	}
	for record, metric := range required {
		expr, ok := records[record]
		if !ok {
			t.Fatalf("recording rules missing record %q", record)
		}
		if !strings.Contains(expr, metric) {
			t.Fatalf("record %q does not use %q: %s", record, metric, expr)
		}
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	recorded := map[string]bool{}
	for _, group := range loadRules(t, "sqlchat_recording_rules.yaml").Groups {
		for _, rule := range group.Rules {
			recorded[rule.Record] = true
		}
	}

	alerts := map[string]string{}
	for _, group := range loadRules(t, "sqlchat_rules.yaml").Groups {
		for _, rule := range group.Rules {
			if rule.Alert == "" {
				continue
			}
			severity := rule.Labels["severity"]
			if severity != "warning" && severity != "critical" {
				t.Fatalf("alert %q has severity %q", rule.Alert, severity)
			}
			alerts[rule.Alert] = rule.Expr
		}
	}

	for _, name := range []string{
		"SQLChatQuestionErrorRatioHigh",
		"SQLChatGenerationLatencyP95High",
		"SQLChatExecutionLatencyP95High",
		"SQLChatDisallowedStatementsGenerated",
		"SQLChatHTTPErrorRateHigh",
	} {
		expr, ok := alerts[name]
		if !ok {
			t.Fatalf("rules missing alert %q", name)
		}
		record := strings.Fields(expr)[0]
		if i := strings.IndexByte(record, '{'); i >= 0 {
			record = record[:i]
		}
		if !recorded[record] {
			t.Fatalf("alert %q references unknown record %q", name, record)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}

	var scrape struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &scrape); err != nil {
		t.Fatalf("parse scrape example: %v", err)
	}
	if strings.Join(scrape.RuleFiles, ",") != "sqlchat_recording_rules.yaml,sqlchat_rules.yaml" {
		t.Fatalf("rule_files = %v", scrape.RuleFiles)
	}
	if len(scrape.ScrapeConfigs) != 1 {
		t.Fatalf("scrape_configs = %+v", scrape.ScrapeConfigs)
	}
	job := scrape.ScrapeConfigs[0]
	if job.JobName != "sqlchat-api" || job.MetricsPath != "/v1/metrics" {
		t.Fatalf("scrape job = %+v", job)
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
