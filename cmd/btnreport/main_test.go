package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/btnreport/cmd/btnreport/subcmd"
)

func TestModules(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		m := m
		t.Run(m.Name, func(t *testing.T) {
			assert.NotEmpty(t, m.Usage)
			assert.NotNil(t, m.Main)
			found, err := subcmd.Parse(m.Name, modules)
			require.NoError(t, err)
			assert.Equal(t, m.Name, found.Name)
		})
		_, dup := seen[m.Name]
		assert.False(t, dup, "duplicate module=%s", m.Name)
		seen[m.Name] = struct{}{}
	}
	assert.Equal(t, []string{"run", "sim", "probe"}, []string{modules[0].Name, modules[1].Name, modules[2].Name})
}

func TestParseUnknown(t *testing.T) {
	t.Parallel()

	_, err := subcmd.Parse("", modules)
	assert.Error(t, err)
	_, err = subcmd.Parse("serve", modules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command='serve'")
}
