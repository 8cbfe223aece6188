package models

// SopInstanceInfo locates one stored instance
type SopInstanceInfo struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	Path           string `json:"path"`
	SOPClassUID    string `json:"SOPClassUID"`
}

// SopInstanceSeries groups the instances produced for one series
type SopInstanceSeries struct {
	SeriesInstanceUID string            `json:"series_instance_uid"`
	SOPClassUID       string            `json:"SOPClassUID"`
	Instances         []SopInstanceInfo `json:"sop_instance_infos"`
}

// InstanceCount returns the number of instances across all series
func InstanceCount(series []SopInstanceSeries) int {
	n := 0
	for _, s := range series {
		n += len(s.Instances)
	}
	return n
}
