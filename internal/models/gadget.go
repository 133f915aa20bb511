package models

import "github.com/shopspring/decimal"

// Gadget is a row of the gadgets table.
type Gadget struct {
	Base
	Name        string          `gorm:"size:255;not null"`
	Description *string         `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Image       *string         `gorm:"size:255"` // storage key, e.g. "gadgets/3f0c….png"
	CreatedByID uint            `gorm:"column:created_by;not null;index"`
	CreatedBy   User            `gorm:"foreignKey:CreatedByID"`
}

// HasImage reports whether the record references a stored image.
func (g *Gadget) HasImage() bool {
	return g.Image != nil && *g.Image != ""
}

// ImageKey returns the stored image key or "" when there is none.
func (g *Gadget) ImageKey() string {
	if !g.HasImage() {
		return ""
	}
	return *g.Image
}
