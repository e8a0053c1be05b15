package observability

// Metric names
const (
	MetricPrefix = "sidebet"

	SweepRunsTotal             = MetricPrefix + "_sweep_runs_total"
	SweepItemsTotal            = MetricPrefix + "_sweep_items_total"
	SweepDuration              = MetricPrefix + "_sweep_duration_seconds"
	NotificationDeliveryTotal  = MetricPrefix + "_notification_deliveries_total"
	EventsPublishedTotal       = MetricPrefix + "_events_published_total"
	SweepLastSuccessTimestamp  = MetricPrefix + "_sweep_last_success_timestamp_seconds"
	DatabasePoolConnections    = MetricPrefix + "_db_pool_connections"
	DatabasePoolAcquiresTotal  = MetricPrefix + "_db_pool_acquires_total"
	DatabasePoolEmptyWaitTotal = MetricPrefix + "_db_pool_empty_acquires_total"
)

// Label names
const (
	LabelSweep     = "sweep"
	LabelOutcome   = "outcome"
	LabelSender    = "sender"
	LabelType      = "type"
	LabelEventType = "event_type"
	LabelState     = "state"
)

// Outcome values
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)
