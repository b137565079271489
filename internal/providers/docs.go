/*
Package providers maps model names to upstream provider families.

A Provider answers three questions for the proxy handlers: does it own a
model name, which URL does a request for that model go to, and which
parameters must be dropped before the payload is sent. Providers never
change the wire format of a payload; the converters package does that.

# Matching

The Registry tries providers in registration order and returns the first
whose SupportsModel accepts the name. Initialize registers:

	claude  names matching the detect package's Claude keywords (claude, sonnet, ...)
	gemini  names matching the Gemini keywords
	openai  everything else

# Endpoints

Each provider builds its own URL layout under the configured base URL:

	claude  {base}/converse, {base}/converse-stream        (3.7 and 4.x models)
	        {base}/invoke, {base}/invoke-with-response-stream (older models)
	gemini  {base}/models/{model}:generateContent
	        {base}/models/{model}:streamGenerateContent
	openai  {base}/chat/completions?api-version={version}

Gemini aliases such as "gemini-2.5-pro:latest" lose their suffix before the
URL is built. OpenAI reasoning models (o3, o4-mini) use the preview API
version.

# Adding a provider

Implement Provider, give it a unique Name and register it before the
openai provider so the catch-all does not shadow it. If the provider speaks
a new wire format, register a converter for openai to that format in the
converters factory as well.
*/
package providers
