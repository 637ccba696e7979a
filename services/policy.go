package services

import (
	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// Workflow and resource actions gated by the capability table
const (
	ActionCreateAppointment   = "create_appointment"
	ActionStaffConfirm        = "staff_confirm"
	ActionStaffReject         = "staff_reject"
	ActionCustomerArrived     = "customer_arrived"
	ActionSubmitReception     = "submit_reception"
	ActionReviewReception     = "review_reception"
	ActionConfirmPayment      = "confirm_payment"
	ActionCompleteAppointment = "complete_appointment"
	ActionRequestCancellation = "request_cancellation"
	ActionApproveCancellation = "approve_cancellation"
	ActionReschedule          = "reschedule"
	ActionManageSlots         = "manage_slots"
	ActionAdjustStock         = "adjust_stock"
	ActionResolveConflict     = "resolve_conflict"
	ActionViewConflicts       = "view_conflicts"
	ActionViewAppointment     = "view_appointment"
)

// Relationship the actor must have to the appointment, on top of role
const (
	relAny        = "any"        // role alone is enough
	relOwner      = "owner"      // actor is the booking customer
	relAssigned   = "assigned"   // actor is the assigned technician
)

type capability struct {
	role         string
	relationship string
}

// capabilities is the single source of authorization truth. Every
// workflow handler consults it instead of branching on role inline.
var capabilities = map[string][]capability{
	ActionCreateAppointment: {
		{models.RoleCustomer, relAny},
		{models.RoleStaff, relAny},
	},
	ActionStaffConfirm:    {{models.RoleStaff, relAny}},
	ActionStaffReject:     {{models.RoleStaff, relAny}},
	ActionCustomerArrived: {
		{models.RoleStaff, relAny},
		{models.RoleCustomer, relOwner},
	},
	ActionSubmitReception: {
		{models.RoleTechnician, relAssigned},
		{models.RoleStaff, relAny},
	},
	ActionReviewReception: {{models.RoleStaff, relAny}},
	ActionConfirmPayment: {
		{models.RoleStaff, relAny},
		{models.RoleCustomer, relOwner},
	},
	ActionCompleteAppointment: {
		{models.RoleTechnician, relAssigned},
		{models.RoleStaff, relAny},
	},
	ActionRequestCancellation: {
		{models.RoleStaff, relAny},
		{models.RoleCustomer, relOwner},
	},
	ActionApproveCancellation: {{models.RoleStaff, relAny}},
	ActionReschedule: {
		{models.RoleStaff, relAny},
		{models.RoleCustomer, relOwner},
	},
	ActionManageSlots:     {{models.RoleStaff, relAny}},
	ActionAdjustStock:     {{models.RoleStaff, relAny}},
	ActionResolveConflict: {{models.RoleStaff, relAny}},
	ActionViewConflicts:   {{models.RoleStaff, relAny}},
	ActionViewAppointment: {
		{models.RoleStaff, relAny},
		{models.RoleCustomer, relOwner},
		{models.RoleTechnician, relAssigned},
	},
}

// CheckPolicy evaluates whether the actor may perform the action,
// optionally against a specific appointment (nil for collection-level
// actions). Violations return FORBIDDEN with no side effects.
func CheckPolicy(db *gorm.DB, actor *models.User, action string, appt *models.Appointment) error {
	if actor == nil {
		return NewError(CodeUnauthorized, "No authenticated actor")
	}

	caps, ok := capabilities[action]
	if !ok {
		return NewError(CodeForbidden, "Unknown action").WithDetail("action", action)
	}

	for _, c := range caps {
		if c.role != actor.Role {
			continue
		}
		switch c.relationship {
		case relAny:
			return nil
		case relOwner:
			if appt != nil && appt.CustomerID == actor.ID {
				return nil
			}
		case relAssigned:
			if appt != nil && appt.TechnicianID != nil && *appt.TechnicianID == actor.ID {
				return nil
			}
		}
	}

	return NewError(CodeForbidden, "Not permitted to perform this action").
		WithDetail("action", action).
		WithDetail("role", actor.Role)
}
