package result

// Plan describes the final aggregation of one job: which files to combine,
// where the aggregate goes and whether the case directory is removed.
type Plan struct {
	Job string `json:"job"`
	Dir string `json:"dir"`
	Ext string `json:"ext"`
	// Checkpoints is the number of checkpoint stages of the job. Only files
	// of the final stage are combined. Negative disables stage filtering.
	Checkpoints int    `json:"checkpoints"`
	Average     bool   `json:"average,omitempty"`
	DataDir     string `json:"data_dir"`
	Cleanup     bool   `json:"cleanup,omitempty"`
}
