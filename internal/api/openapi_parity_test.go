package api

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas struct {
			Error struct {
				Properties struct {
					ErrorCode struct {
						Enum []string `yaml:"enum"`
					} `yaml:"error_code"`
				} `yaml:"properties"`
			} `yaml:"Error"`
		} `yaml:"schemas"`
	} `yaml:"components"`
}

var (
	routePattern     = regexp.MustCompile(`mux\.Handle(?:Func)?\("([A-Z]+) (/v1/[^"]*)"`)
	errorCodePattern = regexp.MustCompile(`"([A-Z]+(?:_[A-Z]+)+)"`)
)

func packageDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(filename)
}

func loadOpenAPI(t *testing.T) openAPIDoc {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(packageDir(t), "..", "..", "api", "openapi.yaml"))
	if err != nil {
		t.Fatalf("read openapi.yaml: %v", err)
	}
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse openapi.yaml: %v", err)
	}
	return doc
}

// sourceMatches collects the first submatch of re across the package's
// non-test Go files.
func sourceMatches(t *testing.T, re *regexp.Regexp, join func([]string) string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(packageDir(t), "*.go"))
	if err != nil {
		t.Fatalf("glob sources: %v", err)
	}
	var out []string
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		src, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		for _, m := range re.FindAllStringSubmatch(string(src), -1) {
			out = append(out, join(m[1:]))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	doc := loadOpenAPI(t)

	var documented []string
	for path, ops := range doc.Paths {
		for method := range ops {
			documented = append(documented, strings.ToUpper(method)+" "+path)
		}
	}
	slices.Sort(documented)

	served := sourceMatches(t, routePattern, func(m []string) string { return m[0] + " " + m[1] })
	if len(served) == 0 {
		t.Fatal("found no registered routes")
	}
	if !slices.Equal(served, documented) {
		t.Fatalf("routes differ\nserved:     %v\ndocumented: %v", served, documented)
	}
}

func TestOpenAPIListsEveryErrorCode(t *testing.T) {
	enum := loadOpenAPI(t).Components.Schemas.Error.Properties.ErrorCode.Enum
	for _, code := range sourceMatches(t, errorCodePattern, func(m []string) string { return m[0] }) {
		if !slices.Contains(enum, code) {
			t.Errorf("error code %s is returned but not in the openapi enum", code)
		}
	}
}
