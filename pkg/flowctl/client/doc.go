// Package client is a small Salesforce REST and Tooling API client covering
// what flowctl needs: SOQL queries with pagination, the organization lookup
// and composite requests.
package client
