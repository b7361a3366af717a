package domain

// PipelineResult is where the replication pipeline stopped for one event
type PipelineResult string

const (
	ResultRelayed        PipelineResult = "relayed"
	ResultInactive       PipelineResult = "inactive"
	ResultBlocked        PipelineResult = "blocked"
	ResultEmpty          PipelineResult = "empty"
	ResultTextOnly       PipelineResult = "text_only"
	ResultNoDestinations PipelineResult = "no_destinations"
	ResultMediaFailed    PipelineResult = "media_failed"
	ResultRecalled       PipelineResult = "recalled"
)

// DeliveryOutcome is the result of one operation against one destination
type DeliveryOutcome struct {
	Destination string
	MessageID   string
	Err         error
	// Fallback is set when delivery succeeded only after join recovery or a degraded resend
	Fallback bool
	// Skipped is set when the destination was never attempted
	Skipped bool
	// MappingErr is a mapping write failure after a successful send
	MappingErr error
}

// OK reports whether the destination accepted the operation
func (o DeliveryOutcome) OK() bool {
	return !o.Skipped && o.Err == nil
}

// RelayReport summarizes the pipeline run for one new message
type RelayReport struct {
	MessageID string
	Kind      MediaKind
	Result    PipelineResult
	Outcomes  []DeliveryOutcome
}

// Delivered counts destinations that accepted the message
func (r *RelayReport) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts destinations that rejected the message
func (r *RelayReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.Err != nil {
			n++
		}
	}
	return n
}

// DeletionReport aggregates one deletion batch
type DeletionReport struct {
	Deleted  int // destination messages removed
	NotFound int // source ids with no mapping
	Errors   int // destination deletes that failed
}

// EditReport aggregates one edit
type EditReport struct {
	Found  bool
	Edited int
	Errors int
}
