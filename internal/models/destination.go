package models

// MimEntry is a storage destination profile used for image and report transmission
type MimEntry struct {
	Record
	Name           string `gorm:"type:varchar(255);not null" json:"name"`
	CallingAETitle string `gorm:"type:varchar(16);not null" json:"calling_ae_title"`
	AETitle        string `gorm:"type:varchar(16);not null" json:"ae_title"`
	IP             string `gorm:"type:varchar(255);not null" json:"ip"`
	Port           int    `gorm:"not null" json:"port"`
	TLSEnabled     bool   `gorm:"default:false" json:"tlsEnabled"`
}

// TableName overrides the table name
func (MimEntry) TableName() string {
	return "mim"
}

// PatientStudyEntry is a patient-level study sent without a worklist/MPPS round trip
type PatientStudyEntry struct {
	Record
	PatientName      string `gorm:"type:varchar(255)" json:"patient_name"`
	PatientID        string `gorm:"type:varchar(64);index" json:"patient_id"`
	PatientBirthDate string `gorm:"type:varchar(8)" json:"patient_birth_date"`
	PatientSex       string `gorm:"type:varchar(16)" json:"patient_sex"`
	Description      string `gorm:"type:text" json:"description,omitempty"`
	SopInstanceUIDs  string `gorm:"column:sop_instance_uids;type:text" json:"sop_instance_uids,omitempty"`
	Generate         *bool  `json:"generate,omitempty"`
}

// TableName overrides the table name
func (PatientStudyEntry) TableName() string {
	return "patient"
}
