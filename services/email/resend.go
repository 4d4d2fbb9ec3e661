package emailsvc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"sync"

	"github.com/resend/resend-go/v2"

	"github.com/trackmyacademy/dashboard/core"
)

type resendService struct {
	client     *resend.Client
	from       string
	subjPrefix string
	logger     core.Logger

	wg sync.WaitGroup
}

var _ core.EmailService = (*resendService)(nil)

func NewResendService(conf *core.Config, logger core.Logger) *resendService {
	from := conf.Email.FromAddress()
	return &resendService{
		client:     resend.NewClient(conf.Email.ResendAPIKey),
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc *resendService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(context.Background(), *msg)
			}
		}()
	}
}

func (svc *resendService) prepare(msg core.EmailMessage) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    svc.from,
		To:      addressList(msg.To),
		Cc:      addressList(msg.Cc),
		Bcc:     addressList(msg.Bcc),
		Subject: svc.subjPrefix + msg.Subject,
		Text:    msg.TextContent,
		Html:    msg.HTMLContent,
	}
	for _, at := range msg.Attachments {
		// resend wants raw bytes; attachments are kept base64 encoded
		content, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping attachment %s: %v", at.Filename, err))
			continue
		}
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:     content,
			Filename:    at.Filename,
			ContentType: at.ContentType,
		})
	}
	return req
}

func addressList(addrs []mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, a.String())
	}
	return list
}

func (svc *resendService) send(ctx context.Context, msg core.EmailMessage) {
	sent, err := svc.client.Emails.SendWithContext(ctx, svc.prepare(msg))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
		return
	}
	svc.logger.Debug(fmt.Sprintf("email sent: %s", sent.Id))
}

// Wait blocks until every message handed to SendMessages was sent or dropped.
func (svc *resendService) Wait() {
	svc.wg.Wait()
}
