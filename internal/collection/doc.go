// Package collection defines the contract every datasource layer speaks:
// Collection and Datasource, the Caller on whose behalf requests run, action
// and chart payloads, and the base types reference datasources embed.
package collection
