package grpc

import "time"

// GetFreeSlotsRequest asks for one staff member's free starts, or with TenantID instead
// of StaffID for every active staff member of the tenant.
type GetFreeSlotsRequest struct {
	StaffID    string   `json:"staff_id,omitempty"`
	TenantID   string   `json:"tenant_id,omitempty"`
	Date       string   `json:"date"` // YYYY-MM-DD in the business timezone
	ServiceIDs []string `json:"service_ids"`
}

type GetFreeSlotsResponse struct {
	Slots []time.Time  `json:"slots,omitempty"`
	Staff []StaffSlots `json:"staff,omitempty"`
}

type StaffSlots struct {
	StaffID string      `json:"staff_id"`
	Slots   []time.Time `json:"slots"`
}

type GetCatalogRequest struct {
	TenantID string `json:"tenant_id"`
}

type GetCatalogResponse struct {
	Staff    []StaffMember `json:"staff"`
	Services []Service     `json:"services"`
}

type StaffMember struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

type BookSlotRequest struct {
	StaffID       string    `json:"staff_id"`
	StartTime     time.Time `json:"start_time"`
	ServiceIDs    []string  `json:"service_ids"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone"`
	PaymentMethod string    `json:"payment_method"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type GetAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type ConfirmAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type RecordPaymentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
}

// ListAppointmentsRequest lists either one staff member's agenda or a whole tenant's;
// exactly one of StaffID and TenantID must be set.
type ListAppointmentsRequest struct {
	StaffID     string    `json:"staff_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type Appointment struct {
	ID               string               `json:"id"`
	TenantID         string               `json:"tenant_id"`
	StaffID          string               `json:"staff_id"`
	ClientName       string               `json:"client_name"`
	ClientPhone      string               `json:"client_phone"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	Status           string               `json:"status"`
	PaymentMethod    string               `json:"payment_method"`
	Services         []AppointmentService `json:"services"`
	TotalPrice       int64                `json:"total_price"`
	DepositDue       int64                `json:"deposit_due"`
	AmountPaid       int64                `json:"amount_paid"`
	PendingBalance   int64                `json:"pending_balance"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason     string               `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type AppointmentService struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}
