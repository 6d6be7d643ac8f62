package worker

import (
	"github.com/assetflow/handover-service/internal/service"
)

// StartNotificationWorker registers notification handlers on the dispatcher
// so created, finalized and reminded assignments reach the notifier stubs.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
