package eventsourcing

// InstrumentationVersion is reported with every tracer and meter created by
// the otel package.
const InstrumentationVersion = "0.3.0"
