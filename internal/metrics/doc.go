// Package metrics records pipeline run outcomes. The Prometheus recorder can
// be written to a node_exporter textfile after each run, which suits a CLI
// that does not live long enough to be scraped.
package metrics
