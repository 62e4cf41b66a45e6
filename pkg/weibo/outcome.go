package weibo

// Status classifies what a page fetch produced after retries are
// exhausted. Exactly one status applies to every fetch.
type Status int

const (
	// StatusSuccess means the page was fetched and parsed and carried
	// at least zero posts. Posts and HasMore are meaningful.
	StatusSuccess Status = iota
	// StatusEmpty means the API explicitly signalled the end of the
	// result set for this location.
	StatusEmpty
	// StatusFailed means the fetch did not produce a usable page. Err
	// carries the final error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of fetching one result page.
type Outcome struct {
	Status Status
	// Posts holds the page's posts when Status is StatusSuccess.
	Posts []Post
	// HasMore is the API's own hint that further pages exist. The page
	// controller treats it as advisory, never as the sole stop signal.
	HasMore bool
	// Err is set when Status is StatusFailed.
	Err error
}

func successOutcome(posts []Post, hasMore bool) Outcome {
	return Outcome{Status: StatusSuccess, Posts: posts, HasMore: hasMore}
}

func emptyOutcome() Outcome {
	return Outcome{Status: StatusEmpty}
}

func failedOutcome(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}
