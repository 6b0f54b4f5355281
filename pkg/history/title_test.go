package history

import (
	"strings"
	"testing"

	"github.com/choraleia/opengpt/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("a", 60)
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{"no messages", nil, "New Chat"},
		{"assistant first", []models.Message{{ID: "1", Role: "assistant", Content: "hello"}}, "New Chat"},
		{"empty content", []models.Message{{ID: "1", Role: "user"}}, "New Chat"},
		{"short", []models.Message{{ID: "1", Role: "user", Content: "Hi"}}, "Hi"},
		{"exactly fifty", []models.Message{{ID: "1", Role: "user", Content: long[:50]}}, long[:50]},
		{"long", []models.Message{{ID: "1", Role: "user", Content: long}}, long[:50] + "..."},
		{"multibyte", []models.Message{{ID: "1", Role: "user", Content: strings.Repeat("é", 51)}}, strings.Repeat("é", 50) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.messages))
		})
	}
}

func TestResolveTitle(t *testing.T) {
	msgs := []models.Message{{ID: "1", Role: "user", Content: "Plan a trip"}}

	assert.Equal(t, "Explicit", ResolveTitle("Explicit", msgs))
	assert.Equal(t, "Plan a trip", ResolveTitle("", msgs))
	assert.Equal(t, "Plan a trip", ResolveTitle("   ", msgs))
	assert.Equal(t, strings.Repeat("x", 100), ResolveTitle(strings.Repeat("x", 150), msgs))
}
