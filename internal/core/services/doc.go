// Package services implements the driving ports: the ingestion pipeline,
// the refresh scheduler and the query service, plus the Runtime that
// wires them to the driven adapters.
//
// Services depend only on the domain and the port interfaces.
package services
