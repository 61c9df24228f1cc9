package synergy

import "errors"

// ErrTrainingInProgress is returned when a training or incremental update
// request arrives while another run holds the training slot. The version
// manifest has a single writer, so concurrent runs are rejected rather
// than queued.
var ErrTrainingInProgress = errors.New("synergy: training already in progress")
