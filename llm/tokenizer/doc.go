/*
Package tokenizer provides model-aware token counting.

TiktokenTokenizer covers OpenAI-family models via pkoukk/tiktoken-go with
lazy encoding initialization; EstimatorTokenizer is the character-ratio
fallback for everything else. A Registry maps model names (with prefix
matching) to tokenizers, and MessageTokenizer adapts either into the
error-free types.Tokenizer used by conversation accounting.
*/
package tokenizer
