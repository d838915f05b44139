package travel

import "sort"

// Hotel is one lodging result near a search center.
type Hotel struct {
	Name             string  `json:"name"`
	Rating           float64 `json:"rating"`
	UserRatingsTotal int     `json:"user_ratings_total"`
	Address          string  `json:"address"`
	PriceLevel       int     `json:"price_level"`
	DistanceKm       float64 `json:"distance_km"`
}

// Place is one activity or sightseeing result, tagged with the search
// keyword that matched it.
type Place struct {
	Tag              string  `json:"tag"`
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Rating           float64 `json:"rating"`
	UserRatingsTotal int     `json:"user_ratings_total"`
}

// RankHotels sorts hotels by rating, breaking ties with review volume, and
// keeps at most limit entries. limit <= 0 means no cap.
func RankHotels(hotels []Hotel, limit int) []Hotel {
	ranked := make([]Hotel, len(hotels))
	copy(ranked, hotels)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		return ranked[i].UserRatingsTotal > ranked[j].UserRatingsTotal
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
