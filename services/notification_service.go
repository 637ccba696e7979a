package services

import (
	"encoding/json"

	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// Outbound events are durable notification rows; the chat, billing and
// reporting subsystems consume them from here.

// NotifyStatusChanged records an appointment-status-changed event
func NotifyStatusChanged(db *gorm.DB, appt *models.Appointment, previousDetailed string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"appointment_id":  appt.ID,
		"customer_id":     appt.CustomerID,
		"previous_status": previousDetailed,
		"status":          appt.Status,
		"detailed_status": appt.DetailedStatus,
	})
	if err != nil {
		return err
	}
	apptID := appt.ID
	return db.Create(&models.Notification{
		Type:          models.NotificationStatusChanged,
		AppointmentID: &apptID,
		Payload:       string(payload),
	}).Error
}

// NotifyInvoiceRequested records an invoice-generation trigger for the
// billing subsystem
func NotifyInvoiceRequested(db *gorm.DB, appt *models.Appointment, reason string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"amount_due":     appt.AmountDue,
		"payment_ref":    appt.PaymentRef,
		"reason":         reason,
	})
	if err != nil {
		return err
	}
	apptID := appt.ID
	return db.Create(&models.Notification{
		Type:          models.NotificationInvoiceRequested,
		AppointmentID: &apptID,
		Payload:       string(payload),
	}).Error
}

// NotifyLowStock records a low-stock alert for the reporting subsystem
func NotifyLowStock(db *gorm.DB, part *models.Part) error {
	payload, err := json.Marshal(map[string]interface{}{
		"part_id":       part.ID,
		"sku":           part.SKU,
		"current_stock": part.CurrentStock,
		"reorder_point": part.ReorderPoint,
	})
	if err != nil {
		return err
	}
	partID := part.ID
	return db.Create(&models.Notification{
		Type:    models.NotificationLowStock,
		PartID:  &partID,
		Payload: string(payload),
	}).Error
}

// ListNotifications returns undelivered notifications, oldest first
func ListNotifications(db *gorm.DB, notificationType string, limit int) ([]models.Notification, error) {
	query := db.Where("delivered = ?", false).Order("id")
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationsDelivered acknowledges a batch of notifications
func MarkNotificationsDelivered(db *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&models.Notification{}).
		Where("id IN ?", ids).
		UpdateColumn("delivered", true).Error
}
