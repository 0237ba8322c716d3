package handlers

// Exposes unexported helpers to the external handlers_test package, whose
// tests import internal/router (which imports this package).
var (
	OpenAPISpec      = openAPISpec
	BaseURL          = baseURL
	ReadingTime      = readingTime
	SanitizeFilename = sanitizeFilename
)
