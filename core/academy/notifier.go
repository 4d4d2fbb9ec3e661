package academy

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
)

const expiringTemplate = "subscription_expiring"

// Lister lists every academy (super-admin scope).
type Lister interface {
	ListAcademies(ctx context.Context, token string) ([]Academy, error)
}

// NotifyReport sums up a notification run.
type NotifyReport struct {
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"` // active, or no admin email
	Unknown  int `json:"unknown"` // missing expiry date
}

// expiringData is the email template data.
type expiringData struct {
	AdminName     string
	AcademyName   string
	ExpiryDate    string
	DaysRemaining int
	Expired       bool
}

// Notifier emails academy admins whose subscription is expiring soon or expired.
type Notifier struct {
	academies Lister
	mailSvc   core.EmailService
	logger    core.Logger
}

func NewNotifier(academies Lister, mailSvc core.EmailService, logger core.Logger) *Notifier {
	return &Notifier{academies: academies, mailSvc: mailSvc, logger: logger}
}

// Notify sends one email per expiring or expired academy, using `token` to list academies.
// When `requester` has an address, it also receives a summary with every academy needing attention as CSV.
func (n *Notifier) Notify(ctx context.Context, token string, requester mail.Address) (NotifyReport, error) {
	var report NotifyReport

	academies, err := n.academies.ListAcademies(ctx, token)
	if err != nil {
		return report, errors.Wrap(err, "listing academies")
	}

	now := NowFunc()
	messages := make([]*core.EmailMessage, 0)
	attention := make([]summaryRow, 0)
	for _, a := range academies {
		sub, err := a.Subscription(now)
		if err != nil {
			report.Unknown++
			attention = append(attention, summaryRow{Academy: a, Subscription: sub})
			n.logger.Warn(fmt.Sprintf("academy %s (%s): %v", a.ID, a.Name, err))
			continue
		}
		if sub.Status == StatusActive {
			report.Skipped++
			continue
		}

		row := summaryRow{Academy: a, Subscription: sub}
		to, err := mail.ParseAddress(a.AdminEmail)
		if err != nil {
			report.Skipped++
			attention = append(attention, row)
			if a.AdminEmail != "" {
				n.logger.Warn(fmt.Sprintf("academy %s (%s): invalid admin email %q", a.ID, a.Name, a.AdminEmail), err)
			}
			continue
		}
		row.Notified = true
		attention = append(attention, row)
		to.Name = a.OwnerName

		subject := fmt.Sprintf("%s: subscription expires in %d day(s)", a.Name, sub.DaysRemaining)
		if sub.Status == StatusExpired {
			subject = fmt.Sprintf("%s: subscription expired", a.Name)
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{*to},
			Subject:      subject,
			TemplateName: expiringTemplate,
			TemplateData: expiringData{
				AdminName:     a.OwnerName,
				AcademyName:   a.Name,
				ExpiryDate:    a.SubscriptionExpiryDate.String(),
				DaysRemaining: sub.DaysRemaining,
				Expired:       sub.Status == StatusExpired,
			},
		})
		report.Notified++
	}

	if requester.Address != "" && len(attention) > 0 {
		summary, err := summaryMessage(requester, report, attention, now)
		if err != nil {
			n.logger.Error(fmt.Sprintf("building subscription summary: %v", err), err)
		} else {
			messages = append(messages, summary)
		}
	}

	if len(messages) > 0 {
		n.mailSvc.SendMessages(messages...)
	}
	return report, nil
}

type summaryRow struct {
	Academy      Academy
	Subscription Subscription
	Notified     bool
}

var summaryHeader = []string{"name", "owner_name", "admin_email", "expiry_date", "status", "days_remaining", "notified"}

// summaryMessage lists `rows` in a CSV attachment, for whoever asked for the notifications.
func summaryMessage(to mail.Address, report NotifyReport, rows []summaryRow, now time.Time) (*core.EmailMessage, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		days := ""
		if r.Subscription.Status != StatusUnknown {
			days = strconv.Itoa(r.Subscription.DaysRemaining)
		}
		rec := []string{
			r.Academy.Name, r.Academy.OwnerName, r.Academy.AdminEmail, r.Academy.SubscriptionExpiryDate.String(),
			string(r.Subscription.Status), days, strconv.FormatBool(r.Notified),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	msg := &core.EmailMessage{
		To:      []mail.Address{to},
		Subject: "Subscription notifications sent",
		BodyStr: fmt.Sprintf(
			"%d academy admin(s) notified, %d skipped, %d without an expiry date.\n"+
				"The attached file lists every academy needing attention.\n",
			report.Notified, report.Skipped, report.Unknown,
		),
	}
	filename := fmt.Sprintf("subscriptions-%s.csv", now.Format(DateLayout))
	if err := msg.Attach(&buf, filename, "text/csv"); err != nil {
		return nil, errors.Wrap(err, "attaching summary")
	}
	return msg, nil
}
