// Package source fetches roster CSV exports for the reporter.
//
// Two source types exist: file (a local path) and http (a GET against an
// export URL such as a SharePoint or Drive download link). Authentication
// for http sources (API key, bearer token, basic) is injected by
// authRoundTripper. Factory: New(config.Source) returns the correct Source.
package source
