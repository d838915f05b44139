package travel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankHotels(t *testing.T) {
	hotels := []Hotel{
		{Name: "Mid", Rating: 4.2, UserRatingsTotal: 500},
		{Name: "Top", Rating: 4.8, UserRatingsTotal: 120},
		{Name: "Popular", Rating: 4.2, UserRatingsTotal: 2000},
		{Name: "Low", Rating: 3.1, UserRatingsTotal: 50},
	}

	ranked := RankHotels(hotels, 3)

	assert.Len(t, ranked, 3)
	assert.Equal(t, "Top", ranked[0].Name)
	// Equal ratings fall back to review volume.
	assert.Equal(t, "Popular", ranked[1].Name)
	assert.Equal(t, "Mid", ranked[2].Name)

	// Input slice must not be reordered.
	assert.Equal(t, "Mid", hotels[0].Name)
}

func TestRankHotelsNoCap(t *testing.T) {
	hotels := []Hotel{{Name: "A", Rating: 4.0}, {Name: "B", Rating: 4.5}}

	ranked := RankHotels(hotels, 0)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "B", ranked[0].Name)

	assert.Empty(t, RankHotels(nil, 10))
}
