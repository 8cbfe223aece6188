package models

// HL7Transport selects how an HL7 message is delivered
type HL7Transport string

const (
	HL7TransportTCP  HL7Transport = "TCP"
	HL7TransportHTTP HL7Transport = "HTTP"
)

// Hl7SettingEntry is an HL7 receiver connection profile
type Hl7SettingEntry struct {
	Record
	Name string `gorm:"type:varchar(255);not null" json:"name"`
	IP   string `gorm:"type:varchar(255);not null" json:"ip"`
	Port int    `gorm:"not null" json:"port"`
}

// TableName overrides the table name
func (Hl7SettingEntry) TableName() string {
	return "hl7_setting"
}

// Hl7MessageSetting is a named HL7 message template
type Hl7MessageSetting struct {
	Record
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Message string `gorm:"type:text;not null" json:"message"`
}

// TableName overrides the table name
func (Hl7MessageSetting) TableName() string {
	return "hl7_message_setting"
}
