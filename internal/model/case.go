package model

import (
	"strings"
	"time"
)

// CaseRecord documents a procedure and the materials it consumed.
type CaseRecord struct {
	ID           string         `json:"id" db:"id"`
	OwnerID      int64          `json:"owner_id" db:"owner_id"`
	CaseDate     Date           `json:"case_date" db:"case_date"`
	HospitalName string         `json:"hospital_name" db:"hospital_name"`
	DoctorName   string         `json:"doctor_name" db:"doctor_name"`
	PatientName  string         `json:"patient_name" db:"patient_name"`
	Notes        string         `json:"notes,omitempty" db:"notes"`
	Materials    []CaseMaterial `json:"materials" db:"-"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// CaseMaterial is one material consumed by a case.
type CaseMaterial struct {
	ID              string  `json:"id" db:"id"`
	CaseID          string  `json:"-" db:"case_id"`
	MaterialName    string  `json:"material_name" db:"material_name"`
	SerialLotNumber string  `json:"serial_lot_number" db:"serial_lot_number"`
	UBBCode         *string `json:"ubb_code,omitempty" db:"ubb_code"`
	Quantity        int     `json:"quantity" db:"quantity"`
}

// Validate returns a field -> message map of violations.
func (c CaseRecord) Validate() map[string]string {
	fields := map[string]string{}
	if c.CaseDate.IsZero() {
		fields["case_date"] = "case date is required"
	}
	if strings.TrimSpace(c.HospitalName) == "" {
		fields["hospital_name"] = "hospital name is required"
	}
	if strings.TrimSpace(c.DoctorName) == "" {
		fields["doctor_name"] = "doctor name is required"
	}
	if strings.TrimSpace(c.PatientName) == "" {
		fields["patient_name"] = "patient name is required"
	}
	if len(c.Materials) == 0 {
		fields["materials"] = "at least one material is required"
	}
	for _, m := range c.Materials {
		if strings.TrimSpace(m.MaterialName) == "" || strings.TrimSpace(m.SerialLotNumber) == "" {
			fields["materials"] = "material name and serial/lot number are required"
			break
		}
		if m.Quantity < 1 {
			fields["materials"] = "material quantity must be at least 1"
			break
		}
	}
	return fields
}
