package idempotency

// cacheable reports whether a response with the given status code may be
// stored for replay.
func cacheable(statusCode int, cfg *Config) bool {
	_, excluded := cfg.IgnoredStatusCodes[statusCode]
	return !excluded
}
