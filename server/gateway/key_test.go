package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_IDIgnoresParamOrder(t *testing.T) {
	a := NewKey("tmdb", "GetTVDetails", map[string]string{"id": "7", "page": "1"})
	b := NewKey("tmdb", "GetTVDetails", map[string]string{"page": "1", "id": "7"})

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, "tmdb:GetTVDetails:id=7:page=1", a.String())
}

func TestKey_IDDistinguishesComponents(t *testing.T) {
	base := NewKey("tmdb", "ListNewMovies", map[string]string{"page": "1"})

	assert.NotEqual(t, base.ID(), NewKey("omdb", "ListNewMovies", map[string]string{"page": "1"}).ID())
	assert.NotEqual(t, base.ID(), NewKey("tmdb", "ListNewTV", map[string]string{"page": "1"}).ID())
	assert.NotEqual(t, base.ID(), NewKey("tmdb", "ListNewMovies", map[string]string{"page": "2"}).ID())
	assert.NotEqual(t, base.ID(), NewKey("tmdb", "ListNewMovies", nil).ID())
}

func TestKey_IDPrefixSupportsWildcardInvalidation(t *testing.T) {
	k := NewKey("tmdb", "ListNewMovies", nil)
	assert.Contains(t, k.ID(), "tmdb:")
}
