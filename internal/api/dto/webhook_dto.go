package dto

import "time"

// PrincipalCreatedRequest is sent by the identity provider when a principal signs up.
type PrincipalCreatedRequest struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	EmailVerified bool   `json:"emailVerified"`
}

// S3EventNotification is the body S3 posts for bucket notifications.
type S3EventNotification struct {
	Records []S3EventRecord `json:"Records"`
}

// S3EventRecord is one object event.
type S3EventRecord struct {
	EventName string    `json:"eventName"`
	EventTime time.Time `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// DeliveryCallbackRequest is the email provider's delivery report.
type DeliveryCallbackRequest struct {
	MailID string `json:"mailId"`
	State  string `json:"state"`
	Error  string `json:"error"`
}
