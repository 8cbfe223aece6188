package models

// WorklistEntry binds a scheduled procedure source (worklist SCP) to the MPPS SCP that
// receives performed procedure step updates for it
type WorklistEntry struct {
	Record
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	// Worklist source AE identity
	CallingAETitle  string `gorm:"type:varchar(16);not null" json:"calling_ae_title"`
	WorklistAETitle string `gorm:"type:varchar(16);not null" json:"worklist_ae_title"`
	WorklistIP      string `gorm:"type:varchar(255);not null" json:"worklist_ip"`
	WorklistPort    int    `gorm:"not null" json:"worklist_port"`

	// MPPS destination AE identity
	MppsCallingAETitle string `gorm:"type:varchar(16)" json:"mpps_calling_ae_title"`
	MppsAETitle        string `gorm:"type:varchar(16)" json:"mpps_ae_title"`
	MppsIP             string `gorm:"type:varchar(255)" json:"mpps_ip,omitempty"`
	MppsPort           int    `json:"mpps_port"`

	TLSEnabled bool `gorm:"default:false" json:"tlsEnabled"`
}

// TableName overrides the table name
func (WorklistEntry) TableName() string {
	return "worklist"
}

// MppsAddress returns the MPPS SCP host, falling back to the worklist host
func (w *WorklistEntry) MppsAddress() string {
	if w.MppsIP != "" {
		return w.MppsIP
	}
	return w.WorklistIP
}

// SameIdentity reports whether both entries address the same worklist and MPPS AEs
func (w *WorklistEntry) SameIdentity(o *WorklistEntry) bool {
	return w.CallingAETitle == o.CallingAETitle &&
		w.WorklistAETitle == o.WorklistAETitle &&
		w.WorklistIP == o.WorklistIP &&
		w.WorklistPort == o.WorklistPort &&
		w.MppsCallingAETitle == o.MppsCallingAETitle &&
		w.MppsAETitle == o.MppsAETitle &&
		w.MppsIP == o.MppsIP &&
		w.MppsPort == o.MppsPort &&
		w.TLSEnabled == o.TLSEnabled
}
