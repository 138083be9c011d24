package provenance

// Source marks where a search result or scraped record came from, so that
// sentiment and report stages can discount synthetic data.
type Source string

const (
	Primary     Source = "primary"
	Fallback    Source = "fallback"
	Placeholder Source = "placeholder"
	Feed        Source = "feed"
	Direct      Source = "direct"
)

// Synthetic reports whether the data was generated locally rather than retrieved.
func (s Source) Synthetic() bool {
	return s == Placeholder
}

func (s Source) String() string {
	return string(s)
}
