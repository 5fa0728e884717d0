package domain

// Background task names understood by the notification workers.
const (
	TaskSendConfirmationEmail = "send_confirmation_email"
	TaskSendConfirmationSMS   = "send_confirmation_sms"
	TaskNotifyAdmin           = "notify_admin"
)
