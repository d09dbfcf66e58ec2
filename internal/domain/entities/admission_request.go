package entities

import (
	"time"
)

// RequestStatus represents the lifecycle state of an admission request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusDenied    RequestStatus = "denied"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusCancelled RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus]map[RequestStatus]struct{}{
	RequestStatusPending: {
		RequestStatusApproved:  {},
		RequestStatusDenied:    {},
		RequestStatusCancelled: {},
	},
	RequestStatusApproved: {
		RequestStatusFulfilled: {},
		RequestStatusCancelled: {},
	},
	RequestStatusDenied:    {},
	RequestStatusFulfilled: {},
	RequestStatusCancelled: {},
}

// Valid reports whether s is a known request status
func (s RequestStatus) Valid() bool {
	_, ok := requestTransitions[s]
	return ok
}

// CanTransitionTo reports whether the request may move from s to the given status
func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	edges, ok := requestTransitions[s]
	if !ok {
		return false
	}
	_, ok = edges[to]
	return ok
}

// Terminal reports whether no further transitions are possible
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// TransferRecord captures one bed-to-bed move made while the request was active
type TransferRecord struct {
	FromBedID string    `json:"from_bed_id"`
	ToBedID   string    `json:"to_bed_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// AdmissionRequest represents a patient's need for a bed
type AdmissionRequest struct {
	ID                   string           `json:"id" db:"id"`
	PatientRef           string           `json:"patient_ref" db:"patient_ref"`
	WardPreference       string           `json:"ward_preference" db:"ward_preference"`
	EquipmentTag         *string          `json:"equipment_tag,omitempty" db:"equipment_tag"`
	Priority             int              `json:"priority" db:"priority"`
	ETA                  time.Time        `json:"eta" db:"eta"`
	ExpectedDischargeAt  *time.Time       `json:"expected_discharge_at,omitempty" db:"expected_discharge_at"`
	Status               RequestStatus    `json:"status" db:"status"`
	AssignedBedID        *string          `json:"assigned_bed_id,omitempty" db:"assigned_bed_id"`
	ReservationExpiresAt *time.Time       `json:"reservation_expires_at,omitempty" db:"reservation_expires_at"`
	DenialReason         *string          `json:"denial_reason,omitempty" db:"denial_reason"`
	CancelReason         *string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	Transfers            []TransferRecord `json:"transfers,omitempty" db:"transfers"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the request
func (r *AdmissionRequest) Clone() *AdmissionRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.EquipmentTag = cloneString(r.EquipmentTag)
	c.AssignedBedID = cloneString(r.AssignedBedID)
	c.DenialReason = cloneString(r.DenialReason)
	c.CancelReason = cloneString(r.CancelReason)
	c.ExpectedDischargeAt = cloneTime(r.ExpectedDischargeAt)
	c.ReservationExpiresAt = cloneTime(r.ReservationExpiresAt)
	c.Transfers = append([]TransferRecord(nil), r.Transfers...)
	return &c
}

// Equipment returns the required equipment tag or ""
func (r *AdmissionRequest) Equipment() string {
	return StringValue(r.EquipmentTag)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
