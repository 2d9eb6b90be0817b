package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/normalize"
)

func TestProcessTitleStripsFragments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"reading time", "Designing resilient pipelines 5 min read", "Designing resilient pipelines"},
		{"korean reading time", "데이터 파이프라인 설계 약 3분 소요", "데이터 파이프라인 설계"},
		{"bracketed tag", "[인사이트] 올해의 기술 트렌드", "올해의 기술 트렌드"},
		{"trailing timestamp", "분기 보고서 발간 2026.03.10", "분기 보고서 발간"},
		{"trailing relative date", "새로운 기능 소개 3일 전", "새로운 기능 소개"},
		{"view counter", "개발 문화 이야기 · 조회 1,024 ", "개발 문화 이야기"},
		{"whitespace collapse", "  Two   spaced    words ", "Two spaced words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalize.ProcessTitle(tt.raw)

			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessTitleRejectsBoilerplate(t *testing.T) {
	tests := []string{
		"Login",
		"Subscribe",
		"로그인",
		"더보기",
		"공유하기",
		"Menu",
		"Read more",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, ok := normalize.ProcessTitle(raw)

			assert.False(t, ok, "boilerplate %q must be rejected", raw)
		})
	}
}

func TestProcessTitleRejectsNonContent(t *testing.T) {
	tests := []string{
		"1",
		"42",
		"12 items",
		"3건",
		"...",
		"—",
		"",
		"ab",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, ok := normalize.ProcessTitle(raw)

			assert.False(t, ok, "non-content %q must be rejected", raw)
		})
	}
}

func TestProcessTitleKeepsRealHeadlines(t *testing.T) {
	tests := []string{
		"How we cut build times in half",
		"올해 주목해야 할 다섯 가지 기술",
		"Postgres at scale: lessons learned",
	}

	for _, raw := range tests {
		got, ok := normalize.ProcessTitle(raw)

		require.True(t, ok)
		assert.NotEmpty(t, got)
	}
}
