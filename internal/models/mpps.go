package models

// MppsStatus is the performed procedure step status
type MppsStatus string

const (
	MppsStatusScheduled    MppsStatus = ""
	MppsStatusInProgress   MppsStatus = "IN_PROGRESS"
	MppsStatusCompleted    MppsStatus = "COMPLETED"
	MppsStatusDiscontinued MppsStatus = "DISCONTINUED"
)

// Terminal reports whether no further status change is allowed
func (s MppsStatus) Terminal() bool {
	return s == MppsStatusCompleted || s == MppsStatusDiscontinued
}

func (s MppsStatus) String() string {
	if s == MppsStatusScheduled {
		return "SCHEDULED"
	}
	return string(s)
}

// MppsEntry is a modality performed procedure step record. The JSON field names are
// shared with the protocol engine and must not change on one side only.
type MppsEntry struct {
	Record
	AccessionNumber                  string `gorm:"type:varchar(64);index" json:"AccessionNumber"`
	RequestedProcedureDescription    string `gorm:"type:text" json:"RequestedProcedureDescription"`
	PatientName                      string `gorm:"type:varchar(255)" json:"PatientName"`
	PatientID                        string `gorm:"type:varchar(64)" json:"PatientID"`
	PatientBirthDate                 string `gorm:"type:varchar(8)" json:"PatientBirthDate"`
	PatientSex                       string `gorm:"type:varchar(16)" json:"PatientSex"`
	Modality                         string `gorm:"type:varchar(16)" json:"Modality"`
	ScheduledStationAETitle          string `gorm:"type:varchar(16)" json:"ScheduledStationAETitle"`
	ScheduledProcedureStepStartDate  string `gorm:"type:varchar(16)" json:"ScheduledProcedureStepStartDate"`
	ScheduledPerformingPhysicianName string `gorm:"type:varchar(255)" json:"ScheduledPerformingPhysicianName"`
	StudyInstanceUID                 string `gorm:"type:varchar(64)" json:"StudyInstanceUID"`

	Status          MppsStatus `gorm:"type:varchar(20);index" json:"status"`
	MppsInstanceUID string     `gorm:"column:mpps_instance_uid;type:varchar(64)" json:"MppsInstanceUid,omitempty"`
	SopInstanceUIDs string     `gorm:"column:sop_instance_uids;type:text" json:"SopInstanceUids,omitempty"`
	DcmFile         string     `gorm:"type:text" json:"DcmFile,omitempty"`
	Description     string     `gorm:"type:text" json:"description,omitempty"`

	WorklistID string `gorm:"type:varchar(36);index" json:"worklist_id,omitempty"`
}

// TableName overrides the table name
func (MppsEntry) TableName() string {
	return "mpps"
}

// ApplyDetails copies the descriptive and demographic fields of src, leaving status,
// protocol-assigned identifiers and the worklist binding untouched
func (m *MppsEntry) ApplyDetails(src *MppsEntry) {
	m.AccessionNumber = src.AccessionNumber
	m.RequestedProcedureDescription = src.RequestedProcedureDescription
	m.PatientName = src.PatientName
	m.PatientID = src.PatientID
	m.PatientBirthDate = src.PatientBirthDate
	m.PatientSex = src.PatientSex
	m.Modality = src.Modality
	m.ScheduledStationAETitle = src.ScheduledStationAETitle
	m.ScheduledProcedureStepStartDate = src.ScheduledProcedureStepStartDate
	m.ScheduledPerformingPhysicianName = src.ScheduledPerformingPhysicianName
	m.StudyInstanceUID = src.StudyInstanceUID
	m.Description = src.Description
}
