package domain

// Page is one slice of a user's event feed, ordered by date descending.
// It is recomputed on every fetch and never stored. LastDocumentID is an
// opaque cursor referencing the final record of this page; feeding it back
// into the next fetch continues the scan. HasMore is a heuristic: it is set
// when the page came back full, which over-reports by one page whenever the
// total count is an exact multiple of the page size.
type Page struct {
	Events         []Event `json:"events"`
	HasMore        bool    `json:"hasMore"`
	LastDocumentID string  `json:"lastDocumentId,omitempty"`
}
