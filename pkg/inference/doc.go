/*
Package inference holds the clients for both inference services.

The fast classifier and the deep analyzer share one wire shape: a chat-style
JSON request (model, system prompt, user prompt) whose response content is
itself a JSON document. Decoders are strict — unknown fields, unknown enum
variants, and out-of-range values are errors, never silent defaults — so a
drifting service contract fails loudly at the call-site that can handle it.

Classifier calls are bounded at three seconds, analyzer calls at
forty-five. Every outbound prompt passes through the redactor.
*/
package inference
