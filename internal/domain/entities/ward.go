package entities

import (
	"time"
)

// Ward represents a fixed-capacity group of beds
type Ward struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	WardType  *string   `json:"ward_type,omitempty" db:"ward_type"`
	Capacity  int       `json:"capacity" db:"capacity"`
	BedIDs    []string  `json:"bed_ids" db:"-"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the ward
func (w *Ward) Clone() *Ward {
	if w == nil {
		return nil
	}
	c := *w
	c.WardType = cloneString(w.WardType)
	c.BedIDs = append([]string(nil), w.BedIDs...)
	return &c
}
