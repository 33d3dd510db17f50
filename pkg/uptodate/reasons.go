package uptodate

// Reason is the machine-readable code of the pipeline step that found the project stale
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonDisabled              Reason = "Disabled"
	ReasonCriticalTasks         Reason = "CriticalTasks"
	ReasonProjectInfoOutOfDate  Reason = "ProjectInfoOutOfDate"
	ReasonItemInfoOutOfDate     Reason = "ItemInfoOutOfDate"
	ReasonCopyAlwaysItemExists  Reason = "CopyAlwaysItemExists"
	ReasonOutputs               Reason = "Outputs"
	ReasonMarker                Reason = "Marker"
	ReasonCopyOutput            Reason = "CopyOutput"
	ReasonCopyToOutputDirectory Reason = "CopyToOutputDirectory"
	// ReasonError marks a check that could not read the file system; the verdict fails closed
	ReasonError Reason = "Error"
)

// Result is the verdict of one check
type Result struct {
	UpToDate bool     `json:"upToDate"`
	Reason   Reason   `json:"reason"`
	Lines    []string `json:"lines"`
	CheckID  string   `json:"checkId,omitempty"`
}
