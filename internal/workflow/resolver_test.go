package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/scanerr"
)

func def(id, alias string, onSite, wip, stored bool) gateway.StatusDefinition {
	return gateway.StatusDefinition{
		ID:             id,
		DisplayName:    alias,
		Alias:          alias,
		OnSite:         onSite,
		WorkInProgress: wip,
		IsStored:       stored,
		Mapped:         true,
	}
}

// testCatalog mirrors a typical workshop configuration.
func testCatalog() *gateway.Catalog {
	return gateway.NewCatalog([]gateway.StatusDefinition{
		def("1", "storage", true, false, true),
		def("2", "on_bench", true, true, false),
		def("3", "awaiting_parts", false, false, false),
		def("4", "pending_cust_response", false, false, false),
		def("5", "complete", true, false, true),
		def("6", "collected", false, false, false),
		def("7", "data_transfer", true, true, true),
		{ID: "8", DisplayName: "Legacy", Mapped: false},
	})
}

func aliases(defs []gateway.StatusDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Alias
	}
	return out
}

func TestPermissibleStates(t *testing.T) {
	catalog := testCatalog()

	testCases := []struct {
		name         string
		current      gateway.StatusDefinition
		hasBay       bool
		expected     []string
		expectedCode scanerr.Code
	}{
		{
			name:         "unmapped status fails",
			current:      gateway.StatusDefinition{ID: "99"},
			expectedCode: scanerr.CodeUnknownState,
		},
		{
			name:         "terminal status fails regardless of flags",
			current:      def("6", "collected", true, true, true),
			hasBay:       true,
			expectedCode: scanerr.CodeOldWorkOrder,
		},
		{
			name:         "off-site has no permissible states",
			current:      def("3", "awaiting_parts", false, false, false),
			expectedCode: scanerr.CodeNoPermissibleStates,
		},
		{
			name:     "on-site idle unstored offers off-site idle targets",
			current:  def("2x", "triage", true, false, false),
			expected: []string{"awaiting_parts", "pending_cust_response", "collected"},
		},
		{
			name:     "stored order with bay moves to the bench only",
			current:  def("1", "storage", true, false, true),
			hasBay:   true,
			expected: []string{"on_bench"},
		},
		{
			name:     "stored order without bay may re-store",
			current:  def("1", "storage", true, false, true),
			hasBay:   false,
			expected: []string{"on_bench", "data_transfer"},
		},
		{
			name:     "in-progress order moves to storage",
			current:  def("2", "on_bench", true, true, false),
			expected: []string{"storage", "complete", "data_transfer"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			targets, err := PermissibleStates(tc.current, catalog, tc.hasBay)
			if tc.expectedCode != "" {
				require.Error(t, err)
				assert.Equal(t, tc.expectedCode, scanerr.CodeOf(err))
				assert.Nil(t, targets)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, aliases(targets))
		})
	}
}

// The four-way classification must be total and mutually exclusive over
// well-formed flag triples: every non-terminal mapped status lands in
// exactly one class.
func TestPermissibleStatesClassificationTotal(t *testing.T) {
	catalog := testCatalog()

	for _, onSite := range []bool{false, true} {
		for _, wip := range []bool{false, true} {
			for _, stored := range []bool{false, true} {
				for _, hasBay := range []bool{false, true} {
					current := def("42", "probe", onSite, wip, stored)
					targets, err := PermissibleStates(current, catalog, hasBay)
					if err != nil {
						assert.NotEmpty(t, scanerr.CodeOf(err))
						continue
					}
					assert.NotEmpty(t, targets)
				}
			}
		}
	}
}

func TestPermissibleStatesEmptyTargetSet(t *testing.T) {
	// A catalog with no off-site idle statuses leaves an on-site idle
	// order with nowhere to go.
	catalog := gateway.NewCatalog([]gateway.StatusDefinition{
		def("1", "storage", true, false, true),
		def("2", "on_bench", true, true, false),
	})

	_, err := PermissibleStates(def("9", "triage", true, false, false), catalog, false)
	assert.Equal(t, scanerr.CodeNoPermissibleStates, scanerr.CodeOf(err))
}

func TestFindAction(t *testing.T) {
	catalog := testCatalog()

	target, err := FindAction(catalog, "complete")
	require.NoError(t, err)
	assert.Equal(t, "5", target.ID)

	_, err = FindAction(catalog, "teleport")
	assert.Equal(t, scanerr.CodeStateResolutionFailed, scanerr.CodeOf(err))
}
