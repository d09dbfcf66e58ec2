package entities

import (
	"time"
)

// BedStatus is the lifecycle state of a single bed
type BedStatus string

const (
	BedStatusAvailable   BedStatus = "available"
	BedStatusOccupied    BedStatus = "occupied"
	BedStatusCleaning    BedStatus = "cleaning"
	BedStatusReserved    BedStatus = "reserved"
	BedStatusMaintenance BedStatus = "maintenance"
)

// AllBedStatuses lists every status in reporting order
var AllBedStatuses = []BedStatus{
	BedStatusAvailable,
	BedStatusOccupied,
	BedStatusCleaning,
	BedStatusReserved,
	BedStatusMaintenance,
}

// bedTransitions holds the only legal edges of the bed state machine.
var bedTransitions = map[BedStatus]map[BedStatus]struct{}{
	BedStatusAvailable: {
		BedStatusReserved:    {},
		BedStatusOccupied:    {},
		BedStatusMaintenance: {},
	},
	BedStatusOccupied: {
		BedStatusCleaning:    {},
		BedStatusMaintenance: {},
	},
	BedStatusReserved: {
		BedStatusOccupied:  {},
		BedStatusAvailable: {},
	},
	BedStatusCleaning: {
		BedStatusAvailable:   {},
		BedStatusMaintenance: {},
	},
	BedStatusMaintenance: {
		BedStatusAvailable: {},
	},
}

// Valid reports whether s is a known status
func (s BedStatus) Valid() bool {
	_, ok := bedTransitions[s]
	return ok
}

// CanTransitionTo reports whether from -> to is an edge of the bed state machine
func (s BedStatus) CanTransitionTo(to BedStatus) bool {
	edges, ok := bedTransitions[s]
	if !ok {
		return false
	}
	_, ok = edges[to]
	return ok
}

// HoldsPatient reports whether a bed in this status must carry an occupant reference
func (s BedStatus) HoldsPatient() bool {
	return s == BedStatusOccupied || s == BedStatusReserved
}

// Bed represents a single allocatable bed inside a ward
type Bed struct {
	ID              string    `json:"id" db:"id"`
	WardID          string    `json:"ward_id" db:"ward_id"`
	Label           string    `json:"label" db:"label"`
	Status          BedStatus `json:"status" db:"status"`
	EquipmentTag    *string   `json:"equipment_tag,omitempty" db:"equipment_tag"`
	PatientRef      *string   `json:"patient_ref,omitempty" db:"patient_ref"`
	RequestID       *string   `json:"request_id,omitempty" db:"request_id"`
	StatusChangedAt time.Time `json:"status_changed_at" db:"status_changed_at"`
}

// Clone returns a deep copy of the bed
func (b *Bed) Clone() *Bed {
	if b == nil {
		return nil
	}
	c := *b
	c.EquipmentTag = cloneString(b.EquipmentTag)
	c.PatientRef = cloneString(b.PatientRef)
	c.RequestID = cloneString(b.RequestID)
	return &c
}

// HasEquipment reports whether the bed carries the given equipment tag.
// An empty tag matches every bed.
func (b *Bed) HasEquipment(tag string) bool {
	if tag == "" {
		return true
	}
	return b.EquipmentTag != nil && *b.EquipmentTag == tag
}

// OccupantConsistent reports whether the occupant reference agrees with the status
func (b *Bed) OccupantConsistent() bool {
	return b.Status.HoldsPatient() == (b.PatientRef != nil)
}

// SetStatus moves the bed to a new status and stamps the change time
func (b *Bed) SetStatus(status BedStatus, at time.Time) {
	b.Status = status
	b.StatusChangedAt = at
}

// ClearOccupant removes the patient and request references
func (b *Bed) ClearOccupant() {
	b.PatientRef = nil
	b.RequestID = nil
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
