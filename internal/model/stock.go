package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

// NewDate returns the date part of t.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores dates as YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StockItem is one ledger row. (MaterialName, SerialLotNumber, OwnerID) is
// unique, and Quantity is always positive once persisted.
type StockItem struct {
	ID              string    `json:"id" db:"id"`
	OwnerID         int64     `json:"owner_id" db:"owner_id"`
	MaterialName    string    `json:"material_name" db:"material_name"`
	SerialLotNumber string    `json:"serial_lot_number" db:"serial_lot_number"`
	UBBCode         *string   `json:"ubb_code,omitempty" db:"ubb_code"`
	ExpiryDate      *Date     `json:"expiry_date,omitempty" db:"expiry_date"`
	Quantity        int       `json:"quantity" db:"quantity"`
	DateAdded       Date      `json:"date_added" db:"date_added"`
	FromField       string    `json:"from_field,omitempty" db:"from_field"`
	ToField         string    `json:"to_field,omitempty" db:"to_field"`
	MaterialCode    string    `json:"material_code,omitempty" db:"material_code"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// StockInput holds the caller-supplied fields of a stock row, used for add,
// bulk add, import and update.
type StockInput struct {
	MaterialName    string  `json:"material_name"`
	SerialLotNumber string  `json:"serial_lot_number"`
	UBBCode         *string `json:"ubb_code,omitempty"`
	ExpiryDate      *Date   `json:"expiry_date,omitempty"`
	Quantity        int     `json:"quantity"`
	DateAdded       *Date   `json:"date_added,omitempty"`
	FromField       string  `json:"from_field,omitempty"`
	ToField         string  `json:"to_field,omitempty"`
	MaterialCode    string  `json:"material_code,omitempty"`
}

// Normalize trims the identity fields in place.
func (in *StockInput) Normalize() {
	in.MaterialName = strings.TrimSpace(in.MaterialName)
	in.SerialLotNumber = strings.TrimSpace(in.SerialLotNumber)
}

// Validate returns a field -> message map of violations.
func (in StockInput) Validate() map[string]string {
	fields := map[string]string{}
	switch {
	case strings.TrimSpace(in.MaterialName) == "":
		fields["material_name"] = "material name is required"
	case len(in.MaterialName) > 255:
		fields["material_name"] = "material name must be less than 255 characters"
	}
	switch {
	case strings.TrimSpace(in.SerialLotNumber) == "":
		fields["serial_lot_number"] = "serial/lot number is required"
	case len(in.SerialLotNumber) > 100:
		fields["serial_lot_number"] = "serial/lot number must be less than 100 characters"
	}
	if in.UBBCode != nil && len(*in.UBBCode) > 100 {
		fields["ubb_code"] = "UBB code must be less than 100 characters"
	}
	if in.Quantity < 1 {
		fields["quantity"] = "quantity must be at least 1"
	}
	if len(in.FromField) > 255 {
		fields["from_field"] = "from field must be less than 255 characters"
	}
	if len(in.ToField) > 255 {
		fields["to_field"] = "to field must be less than 255 characters"
	}
	if len(in.MaterialCode) > 100 {
		fields["material_code"] = "material code must be less than 100 characters"
	}
	return fields
}

// Key returns the natural key label used in skipped-item reports.
func (in StockInput) Key() string {
	return in.MaterialName + " (" + in.SerialLotNumber + ")"
}

// RemoveLine requests deduction of Quantity from the row identified by
// material name and serial/lot number.
type RemoveLine struct {
	MaterialName    string `json:"material_name"`
	SerialLotNumber string `json:"serial_lot_number"`
	Quantity        int    `json:"quantity"`
}

// BulkImportResult reports the outcome of a duplicate-checked import.
type BulkImportResult struct {
	SavedCount    int         `json:"saved_count"`
	SavedQuantity int         `json:"saved_quantity"`
	SkippedCount  int         `json:"skipped_count"`
	SkippedItems  []string    `json:"skipped_items"`
	SavedItems    []StockItem `json:"saved_items"`
}

// MaterialGroup aggregates rows sharing the exact same material name.
type MaterialGroup struct {
	FullName      string      `json:"full_name"`
	TotalQuantity int64       `json:"total_quantity"`
	Items         []StockItem `json:"items"`
}

// PrefixGroup aggregates material groups by the first word of the material name.
type PrefixGroup struct {
	Prefix        string          `json:"prefix"`
	TotalQuantity int64           `json:"total_quantity"`
	Materials     []MaterialGroup `json:"materials"`
}

// Scope is the effective set of owners an operation may see: a single owner,
// or every owner.
type Scope struct {
	OwnerID int64
	All     bool
}

// OwnerScope limits an operation to one owner.
func OwnerScope(id int64) Scope {
	return Scope{OwnerID: id}
}

// AllOwners is the unrestricted scope of privileged readers.
func AllOwners() Scope {
	return Scope{All: true}
}

func (s Scope) String() string {
	if s.All {
		return "all"
	}
	return fmt.Sprintf("owner:%d", s.OwnerID)
}
