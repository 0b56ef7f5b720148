package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearch(t *testing.T) {
	roster := []Patient{
		{ID: "1", Name: "John Doe"},
		{ID: "2", Name: "Jane Smith"},
		{ID: "3", Name: "Peter Jones"},
	}

	assert.Len(t, Search(roster, ""), 3)
	assert.Equal(t, []Patient{{ID: "2", Name: "Jane Smith"}}, Search(roster, "SMI"))
	assert.Equal(t, []string{"1", "3"}, ids(Search(roster, " o")))
	assert.Empty(t, Search(roster, "zed"))
}

func ids(ps []Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
