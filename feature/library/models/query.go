package models

// Filter narrows a query. Zero values match everything.
type Filter struct {
	// LibraryID matches records of one collection.
	LibraryID string `query:"library"`
	// Unassigned matches records without a collection; it overrides LibraryID.
	Unassigned bool      `query:"unassigned"`
	Kind       MediaKind `query:"kind"`
	Status     Status    `query:"status"`
	Favorite   *bool     `query:"favorite"`
	// Text is a case-insensitive substring match over title, overview and genres.
	Text string `query:"q"`
}

// SortField names a sortable column.
type SortField string

const (
	SortAddedAt       SortField = "addedAt"
	SortLastUpdatedAt SortField = "lastUpdatedAt"
	SortTitle         SortField = "title"
	SortUserRating    SortField = "userRating"
	SortID            SortField = "id"
)

// Sort orders query results. Ties are always broken by id.
type Sort struct {
	Field SortField `query:"sort"`
	Desc  bool      `query:"desc"`
}

// Page bounds a query. A zero Limit means no limit.
type Page struct {
	Offset int `query:"offset"`
	Limit  int `query:"limit"`
}

// Stats summarizes a library.
type Stats struct {
	Total     int            `json:"total"`
	Movies    int            `json:"movies"`
	TV        int            `json:"tv"`
	Favorites int            `json:"favorites"`
	Rated     int            `json:"rated"`
	ByStatus  map[Status]int `json:"byStatus"`
}
