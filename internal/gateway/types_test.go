package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogNumericOrder(t *testing.T) {
	catalog := NewCatalog([]StatusDefinition{
		{ID: "10", DisplayName: "Ten"},
		{ID: "2", DisplayName: "Two"},
		{ID: "1", DisplayName: "One"},
	})

	all := catalog.All()
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "2", all[1].ID)
	assert.Equal(t, "10", all[2].ID)
}

func TestCatalogGet(t *testing.T) {
	catalog := NewCatalog([]StatusDefinition{{ID: "1", Alias: "storage", Mapped: true}})

	def, ok := catalog.Get("1")
	require.True(t, ok)
	assert.Equal(t, "storage", def.Alias)

	_, ok = catalog.Get("99")
	assert.False(t, ok)
}

func TestStatusDefinitionTerminal(t *testing.T) {
	assert.True(t, StatusDefinition{Alias: "collected", Mapped: true}.Terminal())
	assert.False(t, StatusDefinition{Alias: "storage", Mapped: true}.Terminal())
	assert.False(t, StatusDefinition{}.Terminal())
}
