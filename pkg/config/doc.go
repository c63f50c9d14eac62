/*
Package config loads Sentinel's runtime configuration.

Values come from three layers, weakest first: built-in defaults, an optional
YAML file, and the process environment. The classifier, analyzer, and tool
gateway URLs are required; a missing one fails startup with a config_error
and exit code 1.
*/
package config
