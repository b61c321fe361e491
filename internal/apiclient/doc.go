// Package apiclient talks to a running storydub daemon over its HTTP API.
//
// Every CLI command that needs the daemon goes through Client. Non-2xx
// responses surface as *APIError, which unwraps to the matching services
// marker so callers can branch with errors.Is. Follow reads the server-sent
// event stream of a job until its done event.
package apiclient
