// Package alerts implements the rule evaluation engine and webhook delivery
// for raptrack alerting. Rules are evaluated against each ingested roster
// report; webhooks are delivered to Slack, Teams or generic HTTP targets.
package alerts
