// utils/email.go
package utils

import (
	"fmt"
	"log"
	"os"

	"github.com/keighl/postmark"

	"sparknexora-backend/models"
)

// EmailService handles sending emails using Postmark
type EmailService struct {
	client *postmark.Client
	sender string
}

// NewEmailService initializes and returns a new EmailService instance.
// Without POSTMARK_API_TOKEN the service runs disabled: sends become no-ops
// so a checkout never fails on a missing mail configuration.
func NewEmailService() *EmailService {
	apiToken := os.Getenv("POSTMARK_API_TOKEN")
	if apiToken == "" {
		log.Println("POSTMARK_API_TOKEN not set; email notifications disabled")
		return &EmailService{}
	}
	return &EmailService{
		client: postmark.NewClient(apiToken, ""),
		sender: os.Getenv("EMAIL_SENDER"),
	}
}

// SendEmail sends a basic email to the specified recipient
func (es *EmailService) SendEmail(toEmail, subject, htmlContent string) error {
	if es.client == nil {
		return nil
	}
	_, err := es.client.SendEmail(postmark.Email{
		From:     es.sender,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlContent,
		TextBody: htmlContent,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendOrderConfirmationEmail sends the purchase confirmation after an order
// has been created for a paid checkout.
func (es *EmailService) SendOrderConfirmationEmail(toEmail string, order models.Order) error {
	subject := "Order Confirmation - Spark Nexora"
	serviceEnd := ""
	if order.ServiceEndDate != nil {
		serviceEnd = order.ServiceEndDate.Format("2006-01-02")
	}
	htmlContent := fmt.Sprintf(
		"<strong>Dear %s,</strong><br><br>Thank you for your purchase! Your order <strong>%s</strong> for the <strong>%s</strong> package is confirmed.<br><br>Amount: <strong>$%.2f</strong><br>Service active until: <strong>%s</strong><br><br>Thank you for working with us!",
		order.CustomerName,
		order.OrderNumber,
		order.PackageName,
		order.PackagePrice,
		serviceEnd,
	)
	return es.SendEmail(toEmail, subject, htmlContent)
}

// SendContactNotificationEmail notifies the site admin about a new inquiry.
func (es *EmailService) SendContactNotificationEmail(toEmail string, contact models.Contact) error {
	subject := fmt.Sprintf("New Contact Inquiry from %s", contact.Name)
	htmlContent := fmt.Sprintf(
		"<strong>New inquiry received.</strong><br><br>Name: %s<br>Email: %s<br>Service: %s<br>Subject: %s<br><br>%s",
		contact.Name,
		contact.Email,
		contact.Service,
		contact.Subject,
		contact.Message,
	)
	return es.SendEmail(toEmail, subject, htmlContent)
}
