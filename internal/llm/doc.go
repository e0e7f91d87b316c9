// Package llm classifies incoming messages as bills or payment confirmations
// using a language model. It supports the OpenAI and Anthropic chat APIs with
// retry, rate limiting, and strict decoding of the model's JSON reply.
package llm
