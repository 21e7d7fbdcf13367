// Package file loads the sercha-docs configuration from a TOML or YAML
// file and watches it for changes.
//
// A .env file next to the configuration is loaded into the environment
// first, so secrets such as GITHUB_TOKEN can stay out of the config file.
package file
