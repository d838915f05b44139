// Package autoload registers all built-in LLM provider factories via their
// init() functions. Import it for side effects only.
package autoload

import (
	_ "wayfarer/pkg/llm/gemini"
	_ "wayfarer/pkg/llm/ollama"
	_ "wayfarer/pkg/llm/openailm"
)
