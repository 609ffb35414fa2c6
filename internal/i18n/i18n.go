// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package i18n provides translated console messages for Serverprep.
// It uses the go-i18n library to load the YAML message files embedded from
// the 'locales' directory.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
)

// Init loads the embedded message files and selects lang. Unknown languages
// fall back to English.
func Init(lang string) {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			continue
		}
		_, _ = b.ParseMessageFileBytes(data, f.Name())
	}

	mu.Lock()
	bundle = b
	localizer = i18n.NewLocalizer(b, lang, language.English.String())
	mu.Unlock()
}

// T translates messageID and, when args are given, formats the result with
// fmt.Sprintf. A missing ID is returned verbatim.
func T(messageID string, args ...any) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		Init("en")
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		msg = messageID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// SetLang changes the active language.
func SetLang(lang string) {
	Init(lang)
}
