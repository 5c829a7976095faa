package worker

import (
	"github.com/repaart/support-desk/internal/service"
)

// StartNotificationWorker registers the requester notification and audit
// handlers on the dispatcher the services were built with.
func StartNotificationWorker(notificationService *service.NotificationService, auditService *service.AuditService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if auditService != nil {
		auditService.RegisterHandlers()
	}
}
