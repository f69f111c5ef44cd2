package tracing

// Span attribute keys used across the event pipeline.
const (
	AttrEnvelopeKind     = "envelope.kind"
	AttrEnvelopeAdmitted = "envelope.admitted"
	AttrEnvelopeDropped  = "envelope.dropped"
	AttrSessionID        = "session.id"
)

// Span names.
const (
	SpanRoute = "assembly.route"
)
