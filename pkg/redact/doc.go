/*
Package redact scrubs secrets from strings before they leave the process.

Everything published on the log topic or sent to an inference endpoint
passes through here. The redactor replaces vendor API-key shapes, bearer
tokens, credentials embedded in connection strings, and assignments to
sensitive-looking names (KEY, TOKEN, SECRET, PASSWORD) with [REDACTED].
EnvVars additionally hides the full value of any environment variable whose
name looks sensitive, keeping the key so the analyzer still sees which
settings exist.
*/
package redact
