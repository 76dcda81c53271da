package model

// BatchAction selects what a batch applies to every listed group.
type BatchAction string

const (
	BatchEnable  BatchAction = "enable"
	BatchDisable BatchAction = "disable"
	BatchDelete  BatchAction = "delete"
	BatchMove    BatchAction = "move"
)

// IsValid reports whether the action is one of the known batch actions.
func (a BatchAction) IsValid() bool {
	switch a {
	case BatchEnable, BatchDisable, BatchDelete, BatchMove:
		return true
	}
	return false
}

// BatchItemError reports why one item of a batch was skipped.
type BatchItemError struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of a batch. Items are applied independently;
// Errors lists the ones that were skipped.
type BatchResult struct {
	Success    bool             `json:"success"`
	NewVersion int64            `json:"new_version"`
	Affected   int              `json:"affected"`
	Errors     []BatchItemError `json:"errors"`
}
