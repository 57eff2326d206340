package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMService sends push notifications to driver devices. The driver
// app registers one token per driver; tokens are stored on the driver
// row by the handlers.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates an FCM service from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NewFCMServiceFromBase64 creates an FCM service from base64-encoded
// credentials, for cloud deployments where uploading a file is awkward
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	ctx := context.Background()

	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// SendJobAssignedNotification tells a driver they got a new job
func (s *FCMService) SendJobAssignedNotification(token, jobID, pickupAddress, scheduledDate, scheduledTime string) error {
	ctx := context.Background()

	body := fmt.Sprintf("Pickup at %s", pickupAddress)
	if scheduledDate != "" {
		body = fmt.Sprintf("Pickup at %s on %s %s", pickupAddress, scheduledDate, scheduledTime)
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: "New job assigned",
			Body:  body,
		},
		Data: map[string]string{
			"type":   "job_assigned",
			"job_id": jobID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM notification sent: %s", response)
	return nil
}

// SendJobUnassignedNotification tells a driver a job was taken away
func (s *FCMService) SendJobUnassignedNotification(token, jobID string) error {
	ctx := context.Background()

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: "Job unassigned",
			Body:  "A job was removed from your schedule.",
		},
		Data: map[string]string{
			"type":   "job_unassigned",
			"job_id": jobID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM notification sent: %s", response)
	return nil
}
