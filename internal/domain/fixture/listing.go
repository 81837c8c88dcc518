package fixture

// Listing is one paginated fixtures index tagged with its league.
type Listing struct {
	League string
	Path   string
}

// Pagination stop reasons. None of them is an error.
const (
	StopEmptyPage  = "empty_page"
	StopNoNext     = "no_next_page"
	StopFetchError = "fetch_error"
	StopMaxPages   = "max_pages"
	StopConsumer   = "consumer_stopped"
	StopCanceled   = "canceled"
)

// WalkStats is filled while a listing sequence is consumed.
type WalkStats struct {
	Pages      int
	Accepted   int
	Rejected   int
	StopReason string
	StopPage   int
}
