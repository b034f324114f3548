package model

import "time"

// WorkOrderRow maps the record store's pc_wo table. Column names follow
// the legacy schema; this core only reads and updates rows, it never
// creates or deletes them.
type WorkOrderRow struct {
	WOID       int64     `gorm:"column:woid;primaryKey"`
	PCID       int64     `gorm:"column:pcid"`
	ProbDesc   string    `gorm:"column:probdesc"`
	PCStatus   int64     `gorm:"column:pcstatus"`
	DropDate   time.Time `gorm:"column:dropdate"`
	SLID       int64     `gorm:"column:slid"`
	PickupDate time.Time `gorm:"column:pickupdate"`
}

// TableName implements gorm's Tabler for the legacy table name.
func (WorkOrderRow) TableName() string { return "pc_wo" }

// CustomerRow maps the record store's pc_owner table.
type CustomerRow struct {
	PCID      int64  `gorm:"column:pcid;primaryKey"`
	PCName    string `gorm:"column:pcname"`
	PCMake    string `gorm:"column:pcmake"`
	PCCompany string `gorm:"column:pccompany"`
}

func (CustomerRow) TableName() string { return "pc_owner" }

// StorageLocationRow maps the record store's storagelocations table.
type StorageLocationRow struct {
	SLID   int64  `gorm:"column:slid;primaryKey"`
	SLName string `gorm:"column:slname"`
}

func (StorageLocationRow) TableName() string { return "storagelocations" }

// BoxStyleRow maps the record store's boxstyles table, the status
// catalog's display data.
type BoxStyleRow struct {
	StatusID      int64  `gorm:"column:statusid;primaryKey"`
	BoxTitle      string `gorm:"column:boxtitle"`
	SelectorColor string `gorm:"column:selectorcolor"`
}

func (BoxStyleRow) TableName() string { return "boxstyles" }

// NoteRow maps the record store's pc_notes table.
type NoteRow struct {
	NoteID   int64     `gorm:"column:noteid;primaryKey;autoIncrement"`
	WOID     int64     `gorm:"column:woid;index"`
	NoteDate time.Time `gorm:"column:notedate"`
	Note     string    `gorm:"column:note"`
}

func (NoteRow) TableName() string { return "pc_notes" }
