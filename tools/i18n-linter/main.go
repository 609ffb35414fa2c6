// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks the translation keys used in Go code against the
// locale files. Run it from the repository root:
//
//	go run ./tools/i18n-linter
//
// It fails when code uses a key missing from the primary locale, or when
// another locale lacks a key of the primary one. Keys nothing refers to are
// reported as a warning.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
	projectRoot   = "."
)

var (
	// i18n.T("prepare.done") and fmt.Errorf(i18n.T("prepare.error_run"), ...)
	literalKeyRe = regexp.MustCompile(`i18n\.T\("([a-z_]+\.[a-z_.]+)"`)
	// i18n.T("step."+step.String())
	prefixKeyRe = regexp.MustCompile(`i18n\.T\("([a-z_]+\.)"\s*\+`)
)

// Usage is what the source tree refers to.
type Usage struct {
	Keys     map[string][]string // key -> files using it
	Prefixes map[string]struct{} // prefixes of keys built at run time
}

// Report is the outcome of one lint run.
type Report struct {
	Undefined []string            // used in code, absent from the primary locale
	Missing   map[string][]string // locale file -> keys it lacks
	Orphaned  []string            // in the primary locale, never used
}

// Failed reports whether the run should fail the build.
func (r Report) Failed() bool {
	return len(r.Undefined) > 0 || len(r.Missing) > 0
}

func main() {
	report, err := lint(projectRoot, localesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-linter: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, report)
	if report.Failed() {
		os.Exit(1)
	}
}

func lint(root, locales string) (Report, error) {
	usage, err := findUsedKeys(root)
	if err != nil {
		return Report{}, fmt.Errorf("scanning sources: %w", err)
	}
	primary, err := loadKeysFromLocale(filepath.Join(locales, primaryLocale))
	if err != nil {
		return Report{}, fmt.Errorf("loading %s: %w", primaryLocale, err)
	}
	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return Report{}, err
	}

	report := Report{Missing: map[string][]string{}}
	for key := range usage.Keys {
		if _, ok := primary[key]; !ok {
			report.Undefined = append(report.Undefined, key)
		}
	}
	for key := range primary {
		if _, ok := usage.Keys[key]; ok || usage.coversPrefix(key) {
			continue
		}
		report.Orphaned = append(report.Orphaned, key)
	}
	for _, file := range files {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(file)
		if err != nil {
			return Report{}, fmt.Errorf("loading %s: %w", file, err)
		}
		for key := range primary {
			if _, ok := keys[key]; !ok {
				report.Missing[file] = append(report.Missing[file], key)
			}
		}
		sort.Strings(report.Missing[file])
	}
	sort.Strings(report.Undefined)
	sort.Strings(report.Orphaned)
	return report, nil
}

func (u Usage) coversPrefix(key string) bool {
	for p := range u.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func printReport(w io.Writer, r Report) {
	section := func(title string, items []string) {
		fmt.Fprintf(w, "--- %s ---\n", title)
		if len(items) == 0 {
			fmt.Fprintln(w, "  none")
		}
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}

	section("Keys used in code but not defined in "+primaryLocale, r.Undefined)
	files := make([]string, 0, len(r.Missing))
	for f := range r.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		section("Keys missing from "+f, r.Missing[f])
	}
	section("Orphaned keys (warning)", r.Orphaned)

	if r.Failed() {
		fmt.Fprintln(w, "translation files are inconsistent")
	} else {
		fmt.Fprintln(w, "translation files are consistent")
	}
}

// findUsedKeys scans all non-test .go files outside tools/ for i18n.T calls.
func findUsedKeys(root string) (Usage, error) {
	usage := Usage{Keys: map[string][]string{}, Prefixes: map[string]struct{}{}}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch info.Name() {
			case "tools", "_examples", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range literalKeyRe.FindAllStringSubmatch(string(content), -1) {
			usage.Keys[m[1]] = append(usage.Keys[m[1]], path)
		}
		for _, m := range prefixKeyRe.FindAllStringSubmatch(string(content), -1) {
			usage.Prefixes[m[1]] = struct{}{}
		}
		return nil
	})
	return usage, err
}

// loadKeysFromLocale reads a locale file and returns its keys. Nested
// mappings are flattened with dots, so flat and nested files compare equal.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, val := range m {
		next := k
		if prefix != "" {
			next = prefix + "." + k
		}
		flattenYAML(next, val, keys)
	}
}
