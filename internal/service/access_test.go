package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessPolicy(t *testing.T) {
	p := NewAccessPolicy(testCatalog())

	tests := []struct {
		tier     string
		template string
		want     bool
	}{
		{"basic", "classic", true},
		{"basic", "golden", false},
		{"basic", "royal", false},
		{"basic", "retired", false},
		{"gold", "classic", true},
		{"gold", "golden", true},
		{"gold", "royal", false},
		{"platinum", "royal", true},
		{"platinum", "golden", true},
		{"platinum", "missing", false},
		{"unknown-tier", "classic", false},
	}
	for _, tt := range tests {
		t.Run(tt.tier+"/"+tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsAccessible(tt.tier, tt.template))
		})
	}
}

func TestAccessibleTemplates(t *testing.T) {
	p := NewAccessPolicy(testCatalog())

	assert.Equal(t, []string{"classic", "minimal"}, p.AccessibleTemplates("basic"))
	assert.Equal(t, []string{"classic", "golden", "minimal", "royal"}, p.AccessibleTemplates("platinum"))
	assert.Empty(t, p.AccessibleTemplates("unknown-tier"))
}
