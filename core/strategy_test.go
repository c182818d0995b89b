package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	selector := NewSelector([]string{"/api/", "/auth/", "/sync/"})

	tests := []struct {
		name string
		url  string
		want Strategy
	}{
		{"api endpoint", "/api/progress", NetworkFirst},
		{"auth endpoint", "/auth/login", NetworkFirst},
		{"sync endpoint", "/sync/push", NetworkFirst},
		{"api with static suffix still network-first", "/api/bundle.js", NetworkFirst},
		{"stylesheet", "/assets/css/main.css", CacheFirst},
		{"script", "/assets/js/main.js", CacheFirst},
		{"image", "/assets/img/logo.png", CacheFirst},
		{"uppercase extension", "/ASSETS/IMG/LOGO.PNG", CacheFirst},
		{"font", "/assets/fonts/inter.woff2", CacheFirst},
		{"favicon", "/favicon.ico", CacheFirst},
		{"static suffix with query", "/assets/app.js?v=2", CacheFirst},
		{"root page", "/", StaleWhileRevalidate},
		{"html page", "/pages/algebra", StaleWhileRevalidate},
		{"explicit html file", "/pages/algebra.html", StaleWhileRevalidate},
		{"extension not in the fixed set", "/download/report.pdf", StaleWhileRevalidate},
		{"extension mid-path is not a suffix", "/assets/js.backup/readme", StaleWhileRevalidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selector.Classify(tt.url))
		})
	}
}

func TestClassifyWithoutNetworkFirstPatterns(t *testing.T) {
	selector := NewSelector(nil)
	assert.Equal(t, CacheFirst, selector.Classify("/api/bundle.js"))
	assert.Equal(t, StaleWhileRevalidate, selector.Classify("/api/progress"))
}
