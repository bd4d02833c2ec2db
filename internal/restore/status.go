package restore

// statusAvailable is the terminal success state for both instances and
// snapshots.
const statusAvailable = "available"

// instanceFailureStatuses are instance states that will not resolve without
// operator intervention. Reaching one aborts the run.
var instanceFailureStatuses = map[string]bool{
	"failed":                              true,
	"restore-error":                       true,
	"incompatible-restore":                true,
	"incompatible-parameters":             true,
	"incompatible-network":                true,
	"incompatible-option-group":           true,
	"inaccessible-encryption-credentials": true,
}

// snapshotFailureStatuses are snapshot states that will not resolve.
var snapshotFailureStatuses = map[string]bool{
	"failed": true,
	"error":  true,
}
