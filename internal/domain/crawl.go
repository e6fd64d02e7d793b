package domain

// PageSummary is the per-page extraction of a domain crawl.
type PageSummary struct {
	URL             string `json:"url"`
	StatusCode      int    `json:"status_code"`
	Title           string `json:"title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	H1Count         int    `json:"h1_count"`
	H1Text          string `json:"h1_text,omitempty"`
}

// CrawlError records one failed page inside an otherwise usable crawl.
type CrawlError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// CrawlResult is the outcome of one bounded domain crawl. Cacheable by
// normalized domain; errors are transient and stripped before caching.
type CrawlResult struct {
	BaseDomain   string        `json:"base_domain"`
	Pages        []PageSummary `json:"pages"`
	TotalPages   int           `json:"total_pages"`
	Phone        string        `json:"phone,omitempty"`
	Email        string        `json:"email,omitempty"`
	Errors       []CrawlError  `json:"errors,omitempty"`
	FallbackUsed bool          `json:"fallback_used,omitempty"`
}
