package models

// ReviewModels lists the tables owned by the review pipeline, in dependency order.
func ReviewModels() []interface{} {
	return []interface{}{
		&Submission{},
		&SubmissionMedia{},
		&Revision{},
		&ExternalCallLog{},
		&RequestLog{},
	}
}
