// Package connector collects observations from monitored data sources.
//
// A Connector turns one configured source into one Snapshot per call. The
// factory New dispatches on the source type: "sql" runs the configured query
// through database/sql (postgres, mysql, sqlite and clickhouse drivers),
// "http" fetches a flat JSON document. Both variants feed the same metric
// extraction rules, so a source is interchangeable as long as it yields a
// row count.
//
// Collection failures never propagate as errors into the check loop:
// CollectWithErrorHandling converts them into COLLECT_FAILED snapshots
// carrying an error code from the closed taxonomy (CONNECTION_ERROR,
// QUERY_ERROR, TIMEOUT_ERROR, VALIDATION_ERROR, CONNECTOR_ERROR) so that a
// broken source is stored, detected and alerted on like any other
// observation.
package connector
