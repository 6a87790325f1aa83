package packer

// bytesPerToken approximates how many bytes of source text one model token
// covers.
const bytesPerToken = 4

// EstimateTokens approximates the token count of text. It is monotonic in
// len(text) and depends only on the bytes.
func EstimateTokens(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

// ExceedsTokenLimit reports whether tokens is strictly above limit.
func ExceedsTokenLimit(tokens, limit int) bool {
	return tokens > limit
}
