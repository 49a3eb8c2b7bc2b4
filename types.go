package epubreplace

// BookInfo identifies the book a report is about.
type BookInfo struct {
	// Title is the primary dc:title.
	Title string `json:"title,omitempty"`

	// Language is the first dc:language (a BCP 47 tag, e.g. "en").
	Language string `json:"language,omitempty"`

	// Identifier is the package's unique identifier (ISBN, UUID, URI...).
	Identifier string `json:"identifier,omitempty"`

	// IdentifierScheme is the identifier's scheme when declared, from
	// opf:scheme or an ePub 3 identifier-type refinement.
	IdentifierScheme string `json:"identifier_scheme,omitempty"`
}
