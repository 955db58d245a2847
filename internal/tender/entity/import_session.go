package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ColumnMapping 列映射：语义字段 → 表格列序号（0-based）
//
// Semantic fields: item_number, description, quantity, uom, unit_rate,
// amount, currency.
type ColumnMapping map[string]int

func (m ColumnMapping) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *ColumnMapping) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan ColumnMapping: %v", value)
	}
	return json.Unmarshal(bytes, m)
}

// MappedRow 映射后的报价行（阶段2产物，阶段3起不断补充匹配与归一化信息）
type MappedRow struct {
	RowIndex    int     `json:"row_index"`
	ItemNumber  string  `json:"item_number"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UOM         string  `json:"uom"`
	UnitRate    float64 `json:"unit_rate"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`

	// 阶段3：匹配
	BOQItemID       *string `json:"boq_item_id,omitempty"`
	MatchType       string  `json:"match_type,omitempty"`
	MatchConfidence float64 `json:"match_confidence,omitempty"`

	// 阶段4：归一化
	NormalizedUnitRate float64 `json:"normalized_unit_rate,omitempty"`
	NormalizedAmount   float64 `json:"normalized_amount,omitempty"`
	IsComparable       bool    `json:"is_comparable"`
	IsIncludedInTotal  bool    `json:"is_included_in_total"`

	Warnings []string `json:"warnings,omitempty"`
}

// MappedRowList 映射行数组（jsonb存储）
type MappedRowList []MappedRow

func (l MappedRowList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *MappedRowList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan MappedRowList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// ImportSession 导入会话：五阶段向导的续传状态
//
// Each stage persists its output here so stages 1-4 can be re-run without
// side effects and a crash between stages loses only the in-flight stage.
// The session id doubles as the continuation token returned to the wizard.
type ImportSession struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	BidSubmissionID string `json:"bid_submission_id" gorm:"size:32;uniqueIndex;not null"`
	Stage           string `json:"stage" gorm:"size:20;not null;default:pending"`

	SheetName     string        `json:"sheet_name" gorm:"size:100"`
	HeaderRow     int           `json:"header_row" gorm:"default:0"`
	ColumnMapping ColumnMapping `json:"column_mapping,omitempty" gorm:"type:jsonb"`
	MappedRows    MappedRowList `json:"mapped_rows,omitempty" gorm:"type:jsonb"`

	FxRate   float64 `json:"fx_rate" gorm:"type:decimal(12,6);default:0"`
	FxSource string  `json:"fx_source" gorm:"size:20"` // manual/source

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ImportSession) TableName() string {
	return "bid_import_sessions"
}
