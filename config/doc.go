/*
Package config loads and validates runtime configuration.

Precedence: built-in defaults, then the YAML file, then environment
variables (SAIKI_SECTION_FIELD by default). The Watcher polls the config
file and hands successfully reloaded configurations to a callback; running
sessions keep their resolved settings, new sessions pick up the change.
*/
package config
